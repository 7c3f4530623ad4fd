package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/diewo77/garage-records/internal/apperr"
)

// State is the process-wide view of the remote store.
type State string

const (
	StateNotAttempted State = "not_attempted"
	StateConnected    State = "connected"
	StateUnavailable  State = "unavailable"
)

// Status is a snapshot of the connection.
type Status struct {
	State       State     `json:"state"`
	Driver      string    `json:"driver,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Failures    int       `json:"consecutiveFailures"`
	LastChange  time.Time `json:"lastChange"`
	LastAttempt time.Time `json:"lastAttempt,omitempty"`
}

// Connection tracks whether Store is reachable. It starts in not_attempted, moves to
// connected after a successful Connect, and is demoted to unavailable when the store
// becomes unreachable. A nil store means no remote is configured: Connected is always false.
type Connection struct {
	store     Store
	threshold int
	log       zerolog.Logger

	mu       sync.RWMutex
	state    State
	reason   string
	failures int
	changed  time.Time
	attempt  time.Time
}

// DefaultFailureThreshold is the number of consecutive timeouts or other non-network
// failures that demote the connection.
const DefaultFailureThreshold = 3

// NewConnection wraps store. threshold <= 0 uses DefaultFailureThreshold.
func NewConnection(store Store, threshold int, logger zerolog.Logger) *Connection {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	c := &Connection{
		store:     store,
		threshold: threshold,
		log:       logger.With().Str("component", "remote").Logger(),
		state:     StateNotAttempted,
		changed:   time.Now().UTC(),
	}
	if store == nil {
		c.state = StateUnavailable
		c.reason = "no remote store configured"
	}
	return c
}

// Store returns the wrapped adapter, nil when none is configured.
func (c *Connection) Store() Store { return c.store }

// Configured reports whether a remote adapter exists at all.
func (c *Connection) Configured() bool { return c.store != nil }

// Connected reports whether operations should currently be sent to the remote.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store != nil && c.state == StateConnected
}

// Status returns a snapshot.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		State:       c.state,
		Reason:      c.reason,
		Failures:    c.failures,
		LastChange:  c.changed,
		LastAttempt: c.attempt,
	}
	if c.store != nil {
		st.Driver = c.store.Name()
	}
	return st
}

// Connect pings the store once, bounded by timeout, and records the outcome.
func (c *Connection) Connect(ctx context.Context, timeout time.Duration) error {
	if c.store == nil {
		return apperr.New(apperr.KindUnavailable, "no remote store configured", nil)
	}
	pctx, cancel := OpContext(ctx, timeout)
	defer cancel()

	err := Classify("ping", c.store.Ping(pctx))

	c.mu.Lock()
	c.attempt = time.Now().UTC()
	c.mu.Unlock()

	if err != nil {
		c.demote(err.Error())
		return apperr.New(apperr.KindUnavailable, "remote store unreachable", err)
	}
	c.promote()
	return nil
}

// ReportSuccess resets the failure counter.
func (c *Connection) ReportSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

// ReportFailure records a failed remote operation. An unavailable error demotes
// immediately. Timeouts and other failures demote once threshold of them happen in a
// row. Invalid input and cancellation never count against the connection.
func (c *Connection) ReportFailure(err error) {
	if err == nil || errors.Is(err, apperr.ErrInvalidInput) || errors.Is(err, context.Canceled) {
		return
	}
	kind := apperr.KindOf(err)

	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()

	if kind == apperr.KindUnavailable || n >= c.threshold {
		c.demote(err.Error())
	}
}

// Watch probes the store every interval while it is unavailable and calls onReconnect
// after each successful reconnection. It returns when ctx is done.
func (c *Connection) Watch(ctx context.Context, interval, timeout time.Duration, onReconnect func(context.Context)) {
	if c.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.Connected() {
			continue
		}
		if err := c.Connect(ctx, timeout); err != nil {
			c.log.Debug().Err(err).Msg("remote still unreachable")
			continue
		}
		c.log.Info().Str("driver", c.store.Name()).Msg("remote store reachable again")
		if onReconnect != nil {
			onReconnect(ctx)
		}
	}
}

func (c *Connection) promote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		c.changed = time.Now().UTC()
	}
	c.state = StateConnected
	c.reason = ""
	c.failures = 0
}

func (c *Connection) demote(reason string) {
	c.mu.Lock()
	prev := c.state
	c.state = StateUnavailable
	c.reason = reason
	c.failures = 0
	if prev != StateUnavailable {
		c.changed = time.Now().UTC()
	}
	c.mu.Unlock()

	if prev != StateUnavailable {
		c.log.Warn().Str("reason", reason).Msg("remote store marked unavailable, using file store")
	}
}
