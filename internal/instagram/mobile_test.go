package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeMobileAPI emulates the login, timeline, upload and configure endpoints.
type fakeMobileAPI struct {
	password     string
	token        string
	loginStatus  int
	loginBody    string
	timelineOK   atomic.Bool
	postRequired atomic.Bool

	logins     atomic.Int32
	uploads    atomic.Int32
	configures atomic.Int32
	caption    atomic.Value
}

func (f *fakeMobileAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/v1/accounts/login/":
		f.logins.Add(1)
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			io.WriteString(w, f.loginBody)
			return
		}
		r.ParseForm()
		var payload map[string]string
		json.Unmarshal([]byte(strings.TrimPrefix(r.PostForm.Get("signed_body"), "SIGNATURE.")), &payload)
		if !strings.HasSuffix(payload["enc_password"], ":"+f.password) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":"fail","message":"The password you entered is incorrect.","error_type":"bad_password"}`)
			return
		}
		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:"+f.token)
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf123"})
		io.WriteString(w, `{"status":"ok","logged_in_user":{"pk":4242,"username":"birdwatcher"}}`)

	case r.URL.Path == "/api/v1/feed/timeline/":
		if !f.timelineOK.Load() || r.Header.Get("Authorization") != "Bearer IGT:2:"+f.token {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"status":"fail","message":"login_required"}`)
			return
		}
		io.WriteString(w, `{"status":"ok","items":[]}`)

	case strings.HasPrefix(r.URL.Path, "/rupload_igphoto/"):
		f.uploads.Add(1)
		if f.postRequired.Load() {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"status":"fail","message":"login_required"}`)
			return
		}
		if r.Header.Get("X-Entity-Length") == "" || r.Header.Get("X-Instagram-Rupload-Params") == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":"fail","message":"missing upload headers"}`)
			return
		}
		io.WriteString(w, `{"status":"ok","upload_id":"1"}`)

	case r.URL.Path == "/api/v1/media/configure/":
		f.configures.Add(1)
		r.ParseForm()
		var payload map[string]string
		json.Unmarshal([]byte(strings.TrimPrefix(r.PostForm.Get("signed_body"), "SIGNATURE.")), &payload)
		f.caption.Store(payload["caption"])
		io.WriteString(w, `{"status":"ok","media":{"pk":99,"id":"99_4242","code":"abc"}}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"status":"fail","message":"not found"}`)
	}
}

func newTestMobileClient(t *testing.T, api *fakeMobileAPI) *MobileClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c := NewMobileClient(srv.Client()).WithBaseURL(srv.URL+"/api/v1", srv.URL)
	c.now = func() time.Time { return time.Unix(1760000000, 0) }
	return c
}

func TestMobileLoginCapturesSession(t *testing.T) {
	api := &fakeMobileAPI{password: "pw", token: "tok"}
	c := newTestMobileClient(t, api)

	sess, err := c.Login(context.Background(), "birdwatcher", "pw", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.UserID != "4242" {
		t.Errorf("UserID = %q, want 4242", sess.UserID)
	}
	if sess.Authorization != "Bearer IGT:2:tok" {
		t.Errorf("Authorization = %q", sess.Authorization)
	}
	if sess.Cookies["csrftoken"] != "csrf123" {
		t.Errorf("cookies = %v", sess.Cookies)
	}
	if sess.Device == nil || !strings.HasPrefix(sess.Device.AndroidID, "android-") {
		t.Errorf("device = %+v", sess.Device)
	}

	data, err := sess.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored, err := UnmarshalSession(data)
	if err != nil {
		t.Fatalf("UnmarshalSession: %v", err)
	}
	if restored.Authorization != sess.Authorization || restored.Device.UUID != sess.Device.UUID {
		t.Errorf("restored session differs: %+v", restored)
	}
}

func TestMobileLoginReusesDevice(t *testing.T) {
	api := &fakeMobileAPI{password: "pw", token: "tok"}
	c := newTestMobileClient(t, api)

	first, err := c.Login(context.Background(), "birdwatcher", "pw", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := uuid.Parse(first.Device.UUID); err != nil {
		t.Errorf("device uuid %q: %v", first.Device.UUID, err)
	}

	again, err := c.Login(context.Background(), "birdwatcher", "pw", first)
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if *again.Device != *first.Device {
		t.Errorf("device changed across logins: %+v -> %+v", first.Device, again.Device)
	}

	other, err := c.Login(context.Background(), "birdwatcher", "pw", &Session{Username: "someone_else", Device: first.Device})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if other.Device.UUID == first.Device.UUID {
		t.Error("device of another username was reused")
	}
}

func TestMobileLoginErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad password", 0, "", ErrBadCredentials},
		{"challenge", http.StatusBadRequest, `{"status":"fail","message":"challenge_required","challenge":{"url":"https://i.instagram.com/challenge/"}}`, ErrChallengeRequired},
		{"html checkpoint", http.StatusOK, `<!DOCTYPE html><html></html>`, ErrChallengeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeMobileAPI{password: "right", token: "tok", loginStatus: tt.status, loginBody: tt.body}
			c := newTestMobileClient(t, api)
			_, err := c.Login(context.Background(), "birdwatcher", "wrong", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Login error = %v, want %v", err, tt.want)
			}
			if IsAuthFailure(err) {
				t.Errorf("login failure %v must not be retryable", err)
			}
		})
	}
}

func TestMobileValidate(t *testing.T) {
	api := &fakeMobileAPI{password: "pw", token: "tok"}
	c := newTestMobileClient(t, api)
	sess, err := c.Login(context.Background(), "birdwatcher", "pw", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := c.Validate(context.Background(), sess); !IsAuthFailure(err) {
		t.Errorf("Validate on expired session = %v, want auth failure", err)
	}

	api.timelineOK.Store(true)
	if err := c.Validate(context.Background(), sess); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMobilePostPhoto(t *testing.T) {
	api := &fakeMobileAPI{password: "pw", token: "tok"}
	c := newTestMobileClient(t, api)
	sess, err := c.Login(context.Background(), "birdwatcher", "pw", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	mediaID, err := c.PostPhoto(context.Background(), sess, Photo{Name: "bird1.jpg", Data: []byte("jpeg"), MimeType: "image/jpeg"}, "A robin #birds")
	if err != nil {
		t.Fatalf("PostPhoto: %v", err)
	}
	if mediaID != "99_4242" {
		t.Errorf("mediaID = %q", mediaID)
	}
	if got, _ := api.caption.Load().(string); got != "A robin #birds" {
		t.Errorf("caption = %q", got)
	}
	if api.uploads.Load() != 1 || api.configures.Load() != 1 {
		t.Errorf("uploads=%d configures=%d, want 1/1", api.uploads.Load(), api.configures.Load())
	}
}

func TestMobilePostPhotoLoginRequired(t *testing.T) {
	api := &fakeMobileAPI{password: "pw", token: "tok"}
	api.postRequired.Store(true)
	c := newTestMobileClient(t, api)
	sess, _ := c.Login(context.Background(), "birdwatcher", "pw", nil)

	_, err := c.PostPhoto(context.Background(), sess, Photo{Name: "bird1.jpg", Data: []byte("jpeg")}, "x")
	if !IsAuthFailure(err) {
		t.Errorf("PostPhoto error = %v, want auth failure", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("error = %#v, want *APIError with 403", err)
	}
	if api.configures.Load() != 0 {
		t.Error("configure called after failed upload")
	}
}

func TestSignedBody(t *testing.T) {
	form := signedBody(map[string]string{"a": "b"})
	body, _ := url.QueryUnescape(form.Encode())
	if body != `signed_body=SIGNATURE.{"a":"b"}` {
		t.Errorf("signedBody = %q", body)
	}
}
