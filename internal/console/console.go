// Package console coordinates data fetches for the presentation layer:
// each view moves through an explicit phase machine, and responses that
// resolve after a newer fetch was issued for the same view are
// discarded instead of clobbering current data.
package console

import (
	"sync"

	"github.com/hivetrace/hivectl/internal/logging"
	"go.uber.org/zap"
)

// View names a console surface backed by its own fetch lifecycle.
type View string

const (
	ViewOverview     View = "overview"
	ViewInteractions View = "interactions"
	ViewDetails      View = "details"
)

// Phase is a view's position in its fetch lifecycle. Transitions
// happen only through explicit intents (Begin, Complete, Reset).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	}
	return "idle"
}

// Coordinator tracks the fetch lifecycle of every view. Each Begin
// hands out a monotonically increasing ticket; a completion presenting
// an older ticket lost the race to a newer fetch and is dropped.
type Coordinator struct {
	logger *zap.Logger

	mu     sync.Mutex
	seq    map[View]uint64
	phases map[View]Phase
	errs   map[View]error
}

// NewCoordinator creates a Coordinator with all views idle.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger: logger.With(logging.Component("console")),
		seq:    make(map[View]uint64),
		phases: make(map[View]Phase),
		errs:   make(map[View]error),
	}
}

// Begin registers a fetch intent for the view, moves it to loading,
// and returns the ticket the completion must present.
func (c *Coordinator) Begin(view View) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[view]++
	c.phases[view] = PhaseLoading
	c.errs[view] = nil
	return c.seq[view]
}

// Complete resolves the fetch holding ticket. It reports whether the
// result is current; a stale completion leaves the view untouched so a
// late response for old criteria cannot overwrite newer data.
func (c *Coordinator) Complete(view View, ticket uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket != c.seq[view] {
		c.logger.Debug("discarding stale response",
			logging.View(string(view)),
			zap.Uint64("ticket", ticket),
			zap.Uint64("current", c.seq[view]))
		return false
	}

	if err != nil {
		c.phases[view] = PhaseFailed
		c.errs[view] = err
	} else {
		c.phases[view] = PhaseLoaded
	}
	return true
}

// Phase returns the view's current phase.
func (c *Coordinator) Phase(view View) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phases[view]
}

// Err returns the failure recorded for the view, if its last completed
// fetch failed.
func (c *Coordinator) Err(view View) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[view]
}

// Reset returns the view to idle, invalidating any in-flight fetch.
func (c *Coordinator) Reset(view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[view]++
	c.phases[view] = PhaseIdle
	c.errs[view] = nil
}
