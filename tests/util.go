package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/somalabs/darasa/core/account"
)

// CreateAccount seeds an account through the repository, failing the test on
// any error.
func CreateAccount(
	t *testing.T,
	repo account.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive, unlimited bool,
	stageID ...string,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	acct := account.Account{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		Unlimited: unlimited,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if len(stageID) > 0 {
		acct.StageID = stageID[0]
	}
	acct.SetActive(isActive)
	if pwd != "" {
		if err := acct.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

// NopLogger discards everything; it satisfies core.Logger for tests.
type NopLogger struct{}

func (NopLogger) Enable(bool)                  {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set updates the clock to the provided time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by the provided duration and returns the
// updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
