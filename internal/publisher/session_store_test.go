package publisher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/maheshrc27/autopost/internal/instagram"
)

func TestFileSessionStoreMissing(t *testing.T) {
	store := NewFileSessionStore(t.TempDir(), nil)
	sess, err := store.Load("nobody")
	if err != nil || sess != nil {
		t.Fatalf("Load = %v, %v, want nil, nil", sess, err)
	}
}

func TestFileSessionStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store := NewFileSessionStore(dir, nil)
	in := &instagram.Session{
		Username: "bird.watcher",
		Backend:  "mobile",
		Cookies:  map[string]string{"csrftoken": "abc"},
		Device:   &instagram.Device{UUID: "u", PhoneID: "p", AndroidID: "android-1"},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := store.Path("bird.watcher")
	if filepath.Base(path) != "bird.watcher_session.json" {
		t.Errorf("path = %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	out, err := store.Load("bird.watcher")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Cookies["csrftoken"] != "abc" || out.Device == nil || out.Device.AndroidID != "android-1" {
		t.Errorf("loaded session = %+v", out)
	}
}

func TestFileSessionStoreSanitizesUsername(t *testing.T) {
	store := NewFileSessionStore("/sessions", nil)
	if got := store.Path("../evil/name"); got != "/sessions/.._evil_name_session.json" {
		t.Errorf("Path = %s", got)
	}
}

func TestFileSessionStoreEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := bytes.Repeat([]byte("k"), 32)
	store := NewFileSessionStore(dir, key)
	if err := store.Save(&instagram.Session{Username: "owl", AccessToken: "token-xyz"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(store.Path("owl"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(raw, []byte("token-xyz")) {
		t.Error("session file contains plaintext token")
	}

	out, err := store.Load("owl")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.AccessToken != "token-xyz" {
		t.Errorf("token = %q", out.AccessToken)
	}

	wrongKey := NewFileSessionStore(dir, bytes.Repeat([]byte("x"), 32))
	if _, err := wrongKey.Load("owl"); err == nil {
		t.Error("Load with wrong key succeeded")
	}
}
