package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/scheduler"
	"github.com/maheshrc27/autopost/internal/service"
)

type fakeSchedule struct {
	reloads  atomic.Int32
	triggers []scheduler.Trigger
}

func (f *fakeSchedule) Reload(context.Context) error {
	f.reloads.Add(1)
	return nil
}

func (f *fakeSchedule) Triggers() []scheduler.Trigger { return f.triggers }

type fakePublications struct {
	result *models.RunResult
	calls  atomic.Int32
}

func (f *fakePublications) Run(ctx context.Context, id int64) *models.RunResult {
	return f.TriggerNow(ctx, id)
}

func (f *fakePublications) TriggerNow(_ context.Context, id int64) *models.RunResult {
	f.calls.Add(1)
	res := *f.result
	res.AccountID = id
	return &res
}

func (f *fakePublications) InFlight(int64) bool { return false }

type testApp struct {
	app      *fiber.App
	schedule *fakeSchedule
	runs     *fakePublications
	history  repository.PublicationHistoryRepository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := repository.Open(repository.DriverSQLite, filepath.Join(t.TempDir(), "autopost.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ta := &testApp{
		app:      fiber.New(),
		schedule: &fakeSchedule{triggers: []scheduler.Trigger{{AccountID: 1, Slot: "morning", Time: "08:00"}}},
		runs:     &fakePublications{result: &models.RunResult{Status: models.RunStatusSuccess, Message: "ok"}},
		history:  repository.NewPublicationHistoryRepository(db),
	}

	accounts := service.NewAccountService(repository.NewAccountRepository(db), nil, 2)
	account := NewAccountHandler(accounts, ta.runs, ta.schedule)
	history := NewHistoryHandler(service.NewHistoryService(ta.history, nil))
	keys := NewApiKeyHandler(service.NewApiKeyService(repository.NewApiKeyRepository(db)))
	auth := NewAuthHandler(&config.Config{
		CookieName:    "autopost_session",
		AdminUsername: "admin",
		AdminPassword: "pw",
		SecretKey:     "0123456789abcdef0123456789abcdef",
	}, service.NewAuthService(&config.Config{
		AdminUsername: "admin",
		AdminPassword: "pw",
		SecretKey:     "0123456789abcdef0123456789abcdef",
	}))

	ta.app.Post("/login", auth.Login)
	ta.app.Post("/logout", auth.Logout)
	ta.app.Get("/accounts", account.ListAccounts)
	ta.app.Get("/accounts/:id", account.GetAccount)
	ta.app.Post("/accounts", account.CreateAccount)
	ta.app.Put("/accounts/:id", account.UpdateAccount)
	ta.app.Delete("/accounts/:id", account.DeleteAccount)
	ta.app.Post("/accounts/:id/run", account.RunAccount)
	ta.app.Get("/triggers", account.ListTriggers)
	ta.app.Get("/history", history.ListHistory)
	ta.app.Get("/stats", history.GetStats)
	ta.app.Post("/api_key/new", keys.CreateApiKey)
	ta.app.Get("/api_key/list", keys.ListKeys)
	return ta
}

func (ta *testApp) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

const accountBody = `{"name":"Birds","instagram_username":"birdwatcher","instagram_password":"secret","folder_id":"abc","storage_credentials":"e30"}`

func TestAccountCRUD(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodPost, "/accounts", accountBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "secret") {
		t.Errorf("create response leaks password: %s", body)
	}
	var created models.Account
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body = ta.do(t, http.MethodPut, "/accounts/1", `{"evening_post":false,"morning_time":"07:30"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update status = %d, body = %s", resp.StatusCode, body)
	}
	var updated models.Account
	json.Unmarshal(body, &updated)
	if updated.EveningPost || updated.MorningTime != "07:30" || updated.FolderID != "abc" {
		t.Errorf("updated = %+v", updated)
	}

	resp, _ = ta.do(t, http.MethodGet, "/accounts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("list status = %d", resp.StatusCode)
	}

	resp, _ = ta.do(t, http.MethodDelete, "/accounts/1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = ta.do(t, http.MethodGet, "/accounts/1", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}

	if got := ta.schedule.reloads.Load(); got != 3 {
		t.Errorf("schedule reloads = %d, want 3", got)
	}
}

func TestAccountValidationAndLimit(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodPost, "/accounts", `{"name":"x","instagram_username":"y","instagram_password":"z","morning_time":"99:99"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("invalid time status = %d, want 400", resp.StatusCode)
	}

	if resp, body := ta.do(t, http.MethodPost, "/accounts", accountBody); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	resp, body := ta.do(t, http.MethodPost, "/accounts", accountBody)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "already used") {
		t.Errorf("duplicate username status = %d, body = %s", resp.StatusCode, body)
	}

	second := strings.Replace(accountBody, `"birdwatcher"`, `"owlwatcher"`, 1)
	if resp, body := ta.do(t, http.MethodPost, "/accounts", second); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create second status = %d, body = %s", resp.StatusCode, body)
	}
	third := strings.Replace(accountBody, `"birdwatcher"`, `"gullwatcher"`, 1)
	resp, body = ta.do(t, http.MethodPost, "/accounts", third)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "maximum") {
		t.Errorf("over limit status = %d, body = %s", resp.StatusCode, body)
	}

	resp, _ = ta.do(t, http.MethodGet, "/accounts/abc", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestRunAccountStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		result models.RunResult
		want   int
	}{
		{"success", models.RunResult{Status: models.RunStatusSuccess}, fiber.StatusOK},
		{"in progress", models.RunResult{Status: models.RunStatusSkipped, Err: service.ErrRunInProgress}, fiber.StatusConflict},
		{"not found", models.RunResult{Status: models.RunStatusError, Err: service.ErrAccountNotFound}, fiber.StatusNotFound},
		{"config", models.RunResult{Status: models.RunStatusError, Err: service.ErrConfig}, fiber.StatusUnprocessableEntity},
		{"other", models.RunResult{Status: models.RunStatusError, Err: io.ErrUnexpectedEOF}, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			result := tc.result
			ta.runs.result = &result

			resp, body := ta.do(t, http.MethodPost, "/accounts/7/run", "")
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tc.want, body)
			}
			if ta.runs.calls.Load() != 1 {
				t.Errorf("runs = %d, want 1", ta.runs.calls.Load())
			}
		})
	}
}

func TestHistoryAndStats(t *testing.T) {
	ta := newTestApp(t)
	if resp, body := ta.do(t, http.MethodPost, "/accounts", accountBody); resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	ctx := context.Background()
	for _, status := range []string{models.PublicationStatusSuccess, models.PublicationStatusError} {
		if err := ta.history.Append(ctx, &models.PublicationRecord{AccountID: 1, Status: status, Details: status}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	resp, body := ta.do(t, http.MethodGet, "/history?account_id=1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var records []models.PublicationRecord
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 || records[0].Status != models.PublicationStatusError {
		t.Errorf("records = %+v, want newest first", records)
	}

	resp, body = ta.do(t, http.MethodGet, "/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats models.PublicationStats
	json.Unmarshal(body, &stats)
	if stats.Total != 2 || stats.Success != 1 || stats.Error != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTriggersAndKeys(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.do(t, http.MethodGet, "/triggers", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"time":"08:00"`) {
		t.Errorf("triggers = %d %s", resp.StatusCode, body)
	}

	resp, body = ta.do(t, http.MethodPost, "/api_key/new", `{"name":"cli"}`)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"api_key":"ap_`) {
		t.Errorf("create key = %d %s", resp.StatusCode, body)
	}
	resp, body = ta.do(t, http.MethodPost, "/api_key/new", `{"name":`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("malformed key payload = %d %s, want 400", resp.StatusCode, body)
	}
	resp, body = ta.do(t, http.MethodPost, "/api_key/new?name=query", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"name":"query"`) {
		t.Errorf("create key without body = %d %s", resp.StatusCode, body)
	}

	resp, body = ta.do(t, http.MethodGet, "/api_key/list", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"name":"cli"`) {
		t.Errorf("list keys = %d %s", resp.StatusCode, body)
	}
}

func TestLoginLogout(t *testing.T) {
	ta := newTestApp(t)

	resp, _ := ta.do(t, http.MethodPost, "/login", `{"username":"admin","password":"nope"}`)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp.StatusCode)
	}

	resp, body := ta.do(t, http.MethodPost, "/login", `{"username":"admin","password":"pw"}`)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "token") {
		t.Fatalf("login = %d %s", resp.StatusCode, body)
	}
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "autopost_session" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("login did not set the session cookie")
	}

	resp, _ = ta.do(t, http.MethodPost, "/logout", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("logout status = %d", resp.StatusCode)
	}
}
