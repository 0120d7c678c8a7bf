package routing

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// Attempt bounds. MaxAttempts is always finite.
const (
	DefaultMaxAttempts = 5
	MaxMaxAttempts     = 10
)

// BackoffStrategy defines how the delay grows between attempts.
type BackoffStrategy int

const (
	BackoffExponential BackoffStrategy = iota // doubles each retry, capped at MaxBackoff
	BackoffConstant                           // InitialBackoff every time
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Strategy       BackoffStrategy
	JitterPercent  uint64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:    DefaultMaxAttempts,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
	Strategy:       BackoffExponential,
}

// WithDefaults fills zero or out-of-range fields. The backoff is never zero.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if c.MaxAttempts > MaxMaxAttempts {
		c.MaxAttempts = MaxMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultRetryConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultRetryConfig.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.JitterPercent > 100 {
		c.JitterPercent = 100
	}
	return c
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota // transient: back off, rotate, try again
	ActionFatal                    // permanent: surface immediately
)

// ClassifyError determines the action for a given error from its kind.
func ClassifyError(err error) ErrorAction {
	if domain.IsRetryable(err) {
		return ActionRetry
	}
	return ActionFatal
}

// State is the retry controller's position in the lifecycle of one call.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateBackoff
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RetryController governs one logical call:
//
//	Idle -> Attempting             Begin
//	Attempting -> Success          OnSuccess
//	Attempting -> Backoff          OnFailure, transient and attempts remain
//	Attempting -> Failed           OnFailure, permanent or attempts exhausted
//	Backoff -> Attempting          Resume, after Wait and rotation
//
// A controller is not safe for concurrent use; create one per call.
type RetryController struct {
	cfg     RetryConfig
	state   State
	retry   domain.RetryState
	backoff retry.Backoff
	lastErr error
}

// NewRetryController creates a controller in the Idle state.
func NewRetryController(cfg RetryConfig) *RetryController {
	cfg = cfg.WithDefaults()
	return &RetryController{
		cfg:   cfg,
		state: StateIdle,
		retry: domain.RetryState{MaxAttempts: cfg.MaxAttempts},
	}
}

// Begin starts the first attempt.
func (c *RetryController) Begin() {
	c.state = StateAttempting
	c.retry = domain.RetryState{Attempt: 1, MaxAttempts: c.cfg.MaxAttempts}
	c.backoff = c.newBackoff()
	c.lastErr = nil
}

// OnSuccess ends the call successfully.
func (c *RetryController) OnSuccess() {
	c.state = StateSuccess
}

// OnFailure records a failed attempt. It returns how long to wait and
// whether another attempt should be made.
func (c *RetryController) OnFailure(err error) (time.Duration, bool) {
	c.lastErr = err

	if ClassifyError(err) == ActionFatal || c.retry.Attempt >= c.retry.MaxAttempts {
		c.state = StateFailed
		return 0, false
	}

	wait, stop := c.backoff.Next()
	if stop || wait <= 0 {
		wait = c.cfg.InitialBackoff
	}

	c.state = StateBackoff
	c.retry.Backoff = wait
	return wait, true
}

// Resume starts the next attempt after a backoff.
func (c *RetryController) Resume() {
	c.state = StateAttempting
	c.retry.Attempt++
}

// Wait sleeps for d or until ctx is done.
func (c *RetryController) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current state.
func (c *RetryController) State() State {
	return c.state
}

// Attempts returns the number of attempts started so far.
func (c *RetryController) Attempts() int {
	return c.retry.Attempt
}

// RetryState returns a copy of the attempt bookkeeping.
func (c *RetryController) RetryState() domain.RetryState {
	return c.retry
}

// LastError returns the error passed to the most recent OnFailure.
func (c *RetryController) LastError() error {
	return c.lastErr
}

// Config returns the effective configuration.
func (c *RetryController) Config() RetryConfig {
	return c.cfg
}

func (c *RetryController) newBackoff() retry.Backoff {
	var b retry.Backoff
	switch c.cfg.Strategy {
	case BackoffConstant:
		b = retry.NewConstant(c.cfg.InitialBackoff)
	default:
		b = retry.NewExponential(c.cfg.InitialBackoff)
	}
	if c.cfg.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.cfg.JitterPercent, b)
	}
	return retry.WithCappedDuration(c.cfg.MaxBackoff, b)
}
