// Package scheduler fires publication runs at each account's configured
// times of day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"
)

// TickSpec fires at second 0 of every minute.
const TickSpec = "0 * * * * *"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type AccountLister interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

type Runner interface {
	Run(ctx context.Context, accountID int64) *models.RunResult
}

type Trigger struct {
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	Slot        string `json:"slot"`
	Time        string `json:"time"`
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMaxConcurrent bounds how many accounts run at once within one tick.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

type Scheduler struct {
	accounts      AccountLister
	runner        Runner
	clock         Clock
	loc           *time.Location
	maxConcurrent int
	logger        *slog.Logger

	mu        sync.Mutex
	triggers  []Trigger
	lastFired map[int64]string
	cron      *cron.Cron
	cancel    context.CancelFunc
	ticks     sync.WaitGroup
}

func New(accounts AccountLister, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		accounts:      accounts,
		runner:        runner,
		clock:         systemClock{},
		loc:           time.Local,
		maxConcurrent: 4,
		logger:        slog.Default().With("component", "scheduler"),
		lastFired:     make(map[int64]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reload rebuilds the trigger table from the current accounts. Calling it
// repeatedly with unchanged accounts yields the same table.
func (s *Scheduler) Reload(ctx context.Context) error {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	var triggers []Trigger
	live := make(map[int64]bool, len(accounts))
	for _, acct := range accounts {
		live[acct.ID] = true
		for _, slot := range acct.Slots() {
			if !slot.Enabled {
				continue
			}
			t, err := time.Parse("15:04", slot.Time)
			if err != nil {
				s.logger.Warn("skipping invalid schedule time", "account_id", acct.ID, "slot", slot.Name, "time", slot.Time)
				continue
			}
			triggers = append(triggers, Trigger{
				AccountID:   acct.ID,
				AccountName: acct.Name,
				Slot:        slot.Name,
				Time:        t.Format("15:04"),
			})
		}
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Time != triggers[j].Time {
			return triggers[i].Time < triggers[j].Time
		}
		return triggers[i].AccountID < triggers[j].AccountID
	})

	s.mu.Lock()
	s.triggers = triggers
	for id := range s.lastFired {
		if !live[id] {
			delete(s.lastFired, id)
		}
	}
	s.mu.Unlock()

	s.logger.Info("schedule reloaded", "accounts", len(accounts), "triggers", len(triggers))
	return nil
}

// Triggers returns a copy of the trigger table.
func (s *Scheduler) Triggers() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Trigger(nil), s.triggers...)
}

// Tick runs every account with a trigger at the current minute and waits
// for those runs. An account fires at most once per wall-clock minute no
// matter how many of its slots match or how often Tick is called. It
// returns the ids that fired.
func (s *Scheduler) Tick(ctx context.Context) []int64 {
	now := s.clock.Now().In(s.loc)
	hhmm := now.Format("15:04")
	minute := now.Format("2006-01-02T15:04")

	var due []int64
	s.mu.Lock()
	for _, t := range s.triggers {
		if t.Time != hhmm || s.lastFired[t.AccountID] == minute {
			continue
		}
		s.lastFired[t.AccountID] = minute
		due = append(due, t.AccountID)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for _, id := range due {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("recovered from panic in scheduled run", "account_id", id, "panic", r)
				}
			}()

			s.logger.Info("running scheduled publication", "account_id", id, "time", hhmm)
			res := s.runner.Run(ctx, id)
			if res != nil && res.Err != nil {
				s.logger.Warn("scheduled publication did not succeed", "account_id", id, "status", res.Status, "error", res.Err)
			}
			return nil
		})
	}
	g.Wait()
	return due
}

// Start registers the minute tick on a cron. It is a no-op when already
// started.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.NewWithLocation(s.loc)
	err := c.AddFunc(TickSpec, func() {
		s.mu.Lock()
		if s.cron == nil {
			s.mu.Unlock()
			return
		}
		s.ticks.Add(1)
		s.mu.Unlock()
		defer s.ticks.Done()

		s.Tick(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("registering tick: %w", err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("scheduler started", "location", s.loc.String())
	return nil
}

// Stop halts the cron, cancels runs started by it and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	c.Stop()
	cancel()
	s.ticks.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}
