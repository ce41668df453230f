package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeLister struct {
	mu       sync.Mutex
	accounts []*models.Account
	err      error
}

func (f *fakeLister) ListAccounts(context.Context) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts, f.err
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  map[int64]int
	total atomic.Int32
	runFn func(id int64)
}

func (f *fakeRunner) Run(_ context.Context, id int64) *models.RunResult {
	f.total.Add(1)
	f.mu.Lock()
	if f.runs == nil {
		f.runs = map[int64]int{}
	}
	f.runs[id]++
	f.mu.Unlock()
	if f.runFn != nil {
		f.runFn(id)
	}
	return &models.RunResult{AccountID: id, Status: models.RunStatusSuccess}
}

func (f *fakeRunner) count(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func account(id int64, morning, afternoon, evening string) *models.Account {
	return &models.Account{
		ID:            id,
		Name:          "acct",
		MorningPost:   morning != "",
		MorningTime:   morning,
		AfternoonPost: afternoon != "",
		AfternoonTime: afternoon,
		EveningPost:   evening != "",
		EveningTime:   evening,
	}
}

func at(hhmm string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02 15:04:05", "2025-05-10 "+hhmm+":00", time.UTC)
	return t
}

func newTestScheduler(t *testing.T, lister *fakeLister, runner *fakeRunner, clock *fakeClock) *Scheduler {
	t.Helper()
	s := New(lister, runner, WithClock(clock), WithLocation(time.UTC), WithMaxConcurrent(2))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return s
}

func TestReloadBuildsTriggers(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{
		account(1, "08:00", "", "22:00"),
		account(2, "", "", ""),
		account(3, "7:05", "15:00", "bogus"),
	}}
	s := newTestScheduler(t, lister, &fakeRunner{}, &fakeClock{})

	got := s.Triggers()
	want := []Trigger{
		{AccountID: 3, Slot: "morning", Time: "07:05"},
		{AccountID: 1, Slot: "morning", Time: "08:00"},
		{AccountID: 3, Slot: "afternoon", Time: "15:00"},
		{AccountID: 1, Slot: "evening", Time: "22:00"},
	}
	if len(got) != len(want) {
		t.Fatalf("triggers = %+v, want %d entries", got, len(want))
	}
	for i := range want {
		if got[i].AccountID != want[i].AccountID || got[i].Slot != want[i].Slot || got[i].Time != want[i].Time {
			t.Errorf("trigger[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if again := s.Triggers(); len(again) != len(got) {
		t.Errorf("Reload is not idempotent: %d vs %d triggers", len(again), len(got))
	}
}

func TestReloadError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	s := New(lister, &fakeRunner{})
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("Reload succeeded with failing lister")
	}
}

func TestTickFiresMatchingAccounts(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{
		account(1, "08:00", "", ""),
		account(2, "08:00", "12:00", ""),
		account(3, "09:00", "", ""),
	}}
	runner := &fakeRunner{}
	clock := &fakeClock{now: at("08:00")}
	s := newTestScheduler(t, lister, runner, clock)

	fired := s.Tick(context.Background())
	if len(fired) != 2 {
		t.Fatalf("fired = %v, want accounts 1 and 2", fired)
	}
	if runner.count(1) != 1 || runner.count(2) != 1 || runner.count(3) != 0 {
		t.Errorf("runs = %v", runner.runs)
	}

	clock.Set(at("08:01"))
	if fired := s.Tick(context.Background()); len(fired) != 0 {
		t.Errorf("08:01 fired %v, want none", fired)
	}
}

func TestTickFiresAtMostOncePerMinute(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{account(1, "08:00", "08:00", "08:00")}}
	runner := &fakeRunner{}
	clock := &fakeClock{now: at("08:00")}
	s := newTestScheduler(t, lister, runner, clock)

	s.Tick(context.Background())
	clock.Set(at("08:00").Add(30 * time.Second))
	s.Tick(context.Background())

	if got := runner.count(1); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}

	// Same time of day on the next day fires again.
	clock.Set(at("08:00").Add(24 * time.Hour))
	s.Tick(context.Background())
	if got := runner.count(1); got != 2 {
		t.Errorf("runs after a day = %d, want 2", got)
	}
}

func TestTickDoesNotReplayMissedMinutes(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{account(1, "08:00", "", "")}}
	runner := &fakeRunner{}
	clock := &fakeClock{now: at("08:05")}
	s := newTestScheduler(t, lister, runner, clock)

	s.Tick(context.Background())
	if runner.total.Load() != 0 {
		t.Errorf("runs = %d, want 0", runner.total.Load())
	}
}

func TestTickUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	lister := &fakeLister{accounts: []*models.Account{account(1, "08:00", "", "")}}
	runner := &fakeRunner{}
	clock := &fakeClock{now: at("11:00")}
	s := New(lister, runner, WithClock(clock), WithLocation(loc))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	s.Tick(context.Background())
	if runner.count(1) != 1 {
		t.Errorf("runs = %d, want 1 (08:00 local is 11:00 UTC)", runner.count(1))
	}
}

func TestTickRecoversPanics(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{
		account(1, "08:00", "", ""),
		account(2, "08:00", "", ""),
	}}
	runner := &fakeRunner{runFn: func(id int64) {
		if id == 1 {
			panic("boom")
		}
	}}
	s := newTestScheduler(t, lister, runner, &fakeClock{now: at("08:00")})

	s.Tick(context.Background())
	if runner.count(2) != 1 {
		t.Errorf("account 2 runs = %d, want 1", runner.count(2))
	}
}

func TestTickBoundsConcurrency(t *testing.T) {
	var accounts []*models.Account
	for i := int64(1); i <= 6; i++ {
		accounts = append(accounts, account(i, "08:00", "", ""))
	}
	var current, peak atomic.Int32
	runner := &fakeRunner{runFn: func(int64) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
	}}
	s := newTestScheduler(t, &fakeLister{accounts: accounts}, runner, &fakeClock{now: at("08:00")})

	s.Tick(context.Background())
	if runner.total.Load() != 6 {
		t.Errorf("runs = %d, want 6", runner.total.Load())
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestReloadReflectsEditsAndDeletions(t *testing.T) {
	lister := &fakeLister{accounts: []*models.Account{
		account(1, "08:00", "", ""),
		account(2, "08:00", "", ""),
	}}
	runner := &fakeRunner{}
	clock := &fakeClock{now: at("09:30")}
	s := newTestScheduler(t, lister, runner, clock)

	lister.mu.Lock()
	lister.accounts = []*models.Account{account(1, "09:30", "", "")}
	lister.mu.Unlock()
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	fired := s.Tick(context.Background())
	if len(fired) != 1 || fired[0] != 1 {
		t.Errorf("fired = %v, want [1]", fired)
	}
	for _, tr := range s.Triggers() {
		if tr.AccountID == 2 {
			t.Errorf("deleted account still has trigger %+v", tr)
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(&fakeLister{}, &fakeRunner{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	s.mu.Lock()
	entries := len(s.cron.Entries())
	s.mu.Unlock()
	if entries != 1 {
		t.Errorf("cron entries = %d, want 1", entries)
	}
	if !s.Running() {
		t.Error("Running() = false after Start")
	}

	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	s.Stop()
}
