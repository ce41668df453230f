package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	defaultMobileAPIURL    = "https://i.instagram.com/api/v1"
	defaultMobileUploadURL = "https://i.instagram.com"

	mobileAppID     = "567067343352427"
	mobileUserAgent = "Instagram 269.0.0.18.75 Android (29/10; 420dpi; 1080x2220; Xiaomi; Mi 9T; davinci; qcom; en_US; 314665256)"

	hexAlphabet = "0123456789abcdef"
)

// MobileClient speaks the private API used by the Android app.
type MobileClient struct {
	apiURL     string
	uploadURL  string
	httpClient *http.Client
	now        func() time.Time
}

var _ Client = (*MobileClient)(nil)

func NewMobileClient(httpClient *http.Client) *MobileClient {
	return &MobileClient{
		apiURL:     defaultMobileAPIURL,
		uploadURL:  defaultMobileUploadURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// WithBaseURL replaces the API and upload hosts.
func (c *MobileClient) WithBaseURL(apiURL, uploadURL string) *MobileClient {
	c.apiURL = strings.TrimRight(apiURL, "/")
	c.uploadURL = strings.TrimRight(uploadURL, "/")
	return c
}

// Login signs in as username. The device of prev is reused when it belongs
// to the same username so Instagram keeps seeing the same phone.
func (c *MobileClient) Login(ctx context.Context, username, password string, prev *Session) (*Session, error) {
	var device *Device
	if prev != nil && prev.Device != nil && prev.Username == username {
		device = prev.Device
	} else {
		var err error
		if device, err = newDevice(); err != nil {
			return nil, fmt.Errorf("generating device ids: %w", err)
		}
	}

	now := c.now()
	sess := &Session{
		Username:  username,
		Backend:   models.PlatformMobile,
		Device:    device,
		Cookies:   map[string]string{},
		CreatedAt: now,
	}

	form := signedBody(map[string]string{
		"username":            username,
		"enc_password":        fmt.Sprintf("#PWD_INSTAGRAM:0:%d:%s", now.Unix(), password),
		"device_id":           device.AndroidID,
		"phone_id":            device.PhoneID,
		"guid":                device.UUID,
		"login_attempt_count": "0",
	})

	var resp transfer.MobileLoginResponse
	if err := c.post(ctx, sess, "/accounts/login/", form, &resp); err != nil {
		return nil, fmt.Errorf("login as %s: %w", username, err)
	}
	if resp.LoggedInUser.PK == 0 {
		return nil, fmt.Errorf("login as %s: response carried no user", username)
	}
	if sess.Authorization == "" && len(sess.Cookies) == 0 {
		return nil, fmt.Errorf("login as %s: response carried no credentials", username)
	}

	sess.UserID = strconv.FormatInt(resp.LoggedInUser.PK, 10)
	sess.ValidatedAt = now
	return sess, nil
}

// Validate fetches the timeline, the cheapest call that requires a live login.
func (c *MobileClient) Validate(ctx context.Context, s *Session) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.apiURL+"/feed/timeline/", nil, s)
	if err != nil {
		return err
	}
	if err := c.do(req, s, nil); err != nil {
		return fmt.Errorf("validating session of %s: %w", s.Username, err)
	}
	s.ValidatedAt = c.now()
	return nil
}

func (c *MobileClient) PostPhoto(ctx context.Context, s *Session, photo Photo, caption string) (string, error) {
	uploadID := strconv.FormatInt(c.now().UnixMilli(), 10)
	suffix, err := gonanoid.Generate("0123456789", 10)
	if err != nil {
		return "", err
	}
	entity := fmt.Sprintf("%s_0_%s", uploadID, suffix)

	params, err := json.Marshal(map[string]string{
		"retry_context":     `{"num_step_auto_retry":0,"num_reupload":0,"num_step_manual_retry":0}`,
		"media_type":        "1",
		"upload_id":         uploadID,
		"xsharing_user_ids": "[]",
		"image_compression": `{"lib_name":"moz","lib_version":"3.1.m","quality":"80"}`,
	})
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.uploadURL+"/rupload_igphoto/"+entity, bytes.NewReader(photo.Data), s)
	if err != nil {
		return "", err
	}
	mimeType := photo.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Instagram-Rupload-Params", string(params))
	req.Header.Set("X-Entity-Type", mimeType)
	req.Header.Set("X-Entity-Name", entity)
	req.Header.Set("X-Entity-Length", strconv.Itoa(len(photo.Data)))
	req.Header.Set("Offset", "0")

	var upload transfer.MobileUploadResponse
	if err := c.do(req, s, &upload); err != nil {
		return "", fmt.Errorf("uploading %s: %w", photo.Name, err)
	}

	configure := map[string]string{
		"upload_id":   uploadID,
		"caption":     caption,
		"source_type": "4",
		"_uid":        s.UserID,
	}
	if s.Device != nil {
		configure["device_id"] = s.Device.AndroidID
		configure["_uuid"] = s.Device.UUID
	}

	var conf transfer.MobileConfigureResponse
	if err := c.post(ctx, s, "/media/configure/", signedBody(configure), &conf); err != nil {
		return "", fmt.Errorf("configuring %s: %w", photo.Name, err)
	}

	switch {
	case conf.Media.ID != "":
		return conf.Media.ID, nil
	case conf.Media.PK != 0:
		return strconv.FormatInt(conf.Media.PK, 10), nil
	}
	return "", fmt.Errorf("configuring %s: no media id returned", photo.Name)
}

func (c *MobileClient) post(ctx context.Context, s *Session, path string, form url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(form.Encode()), s)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return c.do(req, s, out)
}

func (c *MobileClient) newRequest(ctx context.Context, method, rawURL string, body io.Reader, s *Session) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", mobileUserAgent)
	req.Header.Set("X-IG-App-ID", mobileAppID)
	req.Header.Set("X-IG-Capabilities", "3brTvx0=")
	req.Header.Set("X-IG-Connection-Type", "WIFI")
	req.Header.Set("Accept-Language", "en-US")

	if s == nil {
		return req, nil
	}
	if s.Device != nil {
		req.Header.Set("X-IG-Device-ID", s.Device.UUID)
		req.Header.Set("X-IG-Android-ID", s.Device.AndroidID)
	}
	if s.Authorization != "" {
		req.Header.Set("Authorization", s.Authorization)
	}
	if s.UserID != "" {
		req.Header.Set("IG-U-DS-USER-ID", s.UserID)
	}
	for name, value := range s.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

// do sends req, folds refreshed credentials into s and decodes a successful
// body into out.
func (c *MobileClient) do(req *http.Request, s *Session, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if s != nil {
		absorbCredentials(resp, s)
	}

	var status transfer.MobileStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
			// Instagram answers checkpoints with an HTML page.
			return &APIError{StatusCode: resp.StatusCode, Message: "unexpected HTML response", kind: ErrChallengeRequired}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("error parsing response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK || status.Status != "ok" {
		return mobileError(resp.StatusCode, status)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}
	return nil
}

func mobileError(statusCode int, status transfer.MobileStatusResponse) error {
	apiErr := &APIError{StatusCode: statusCode, Type: status.ErrorType, Message: status.Message}
	switch {
	case status.Message == "challenge_required" || status.ErrorType == "checkpoint_challenge_required" ||
		status.Challenge != nil || status.ChallengeURL != "" || status.TwoFactorRequired:
		apiErr.kind = ErrChallengeRequired
	case status.Message == "login_required" || status.ErrorType == "login_required":
		apiErr.kind = ErrLoginRequired
	case status.ErrorType == "bad_password" || status.ErrorType == "invalid_user":
		apiErr.kind = ErrBadCredentials
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		apiErr.kind = ErrLoginRequired
	}
	return apiErr
}

func absorbCredentials(resp *http.Response, s *Session) {
	if auth := resp.Header.Get("Ig-Set-Authorization"); auth != "" && !strings.HasSuffix(auth, ":") {
		s.Authorization = auth
	}
	if uid := resp.Header.Get("Ig-Set-Ig-U-Ds-User-Id"); uid != "" {
		s.UserID = uid
	}
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	for _, ck := range resp.Cookies() {
		if ck.Value == "" || ck.MaxAge < 0 {
			delete(s.Cookies, ck.Name)
			continue
		}
		s.Cookies[ck.Name] = ck.Value
	}
}

func signedBody(payload map[string]string) url.Values {
	data, _ := json.Marshal(payload)
	return url.Values{"signed_body": {"SIGNATURE." + string(data)}}
}

func newDevice() (*Device, error) {
	androidID, err := gonanoid.Generate(hexAlphabet, 16)
	if err != nil {
		return nil, err
	}
	return &Device{UUID: uuid.NewString(), PhoneID: uuid.NewString(), AndroidID: "android-" + androidID}, nil
}
