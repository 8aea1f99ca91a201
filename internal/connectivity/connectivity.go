package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateReachable State = iota
	StateUnreachable
	StateProbing
)

func (s State) String() string {
	switch s {
	case StateReachable:
		return "reachable"
	case StateUnreachable:
		return "unreachable"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

var (
	ErrUnreachable = errors.New("remote store marked unreachable")

	// ErrAborted marks a call abandoned by its caller. It neither trips nor
	// closes the tracker.
	ErrAborted = errors.New("call aborted by caller")
)

type Config struct {
	Name string
	// MaxFailures consecutive transport failures flip the tracker to
	// unreachable. Defaults to 1: a single failure takes the whole gateway offline.
	MaxFailures int
	// ProbeInterval is how long the tracker stays unreachable before it admits
	// a single probe call.
	ProbeInterval time.Duration
	MaxProbes     int
	// IsFailure classifies errors returned by Execute. Errors it rejects are
	// completed round-trips and count as successes. Nil treats every error as a failure.
	IsFailure      func(error) bool
	OnStateChange  func(name string, from State, to State)
	OnFirstOffline func(name string)
}

// Tracker is the connectivity state shared by the gateway and the
// synchronizers of one session.
type Tracker struct {
	name           string
	maxFailures    int
	probeInterval  time.Duration
	maxProbes      int
	isFailure      func(error) bool
	onStateChange  func(name string, from State, to State)
	onFirstOffline func(name string)

	mutex        sync.RWMutex
	state        State
	failures     int
	probes       int
	lastFailTime time.Time
	wentOffline  bool

	// Metrics
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejected   int64
	totalAborted    int64
	stateChanges    int64
	lastStateChange time.Time

	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *Tracker {
	if config.Name == "" {
		config.Name = "gateway"
	}

	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}

	if config.ProbeInterval <= 0 {
		logger.WithFields(logrus.Fields{
			"tracker":       config.Name,
			"invalid_value": config.ProbeInterval,
			"default_value": "30s",
		}).Warn("Invalid ProbeInterval value, using default")
		config.ProbeInterval = 30 * time.Second
	}

	if config.ProbeInterval > 10*time.Minute {
		logger.WithFields(logrus.Fields{
			"tracker":       config.Name,
			"invalid_value": config.ProbeInterval,
			"max_allowed":   "10m",
		}).Warn("ProbeInterval too high, capping at maximum")
		config.ProbeInterval = 10 * time.Minute
	}

	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}

	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &Tracker{
		name:           config.Name,
		maxFailures:    config.MaxFailures,
		probeInterval:  config.ProbeInterval,
		maxProbes:      config.MaxProbes,
		isFailure:      config.IsFailure,
		onStateChange:  config.OnStateChange,
		onFirstOffline: config.OnFirstOffline,
		state:          StateReachable,
		logger:         logger,
	}
}

// Execute runs fn unless the tracker is unreachable, in which case it fails
// fast with ErrUnreachable. Once ProbeInterval has elapsed a single probe is
// let through; its success marks the remote reachable again.
func (t *Tracker) Execute(fn func() error) error {
	t.mutex.Lock()

	if t.state == StateUnreachable {
		if time.Since(t.lastFailTime) > t.probeInterval {
			t.setState(StateProbing)
			t.probes = 0
		} else {
			t.totalRejected++
			t.logger.WithFields(logrus.Fields{
				"tracker": t.name,
				"state":   t.state.String(),
			}).Debug("Remote unreachable, rejecting call")
			t.mutex.Unlock()
			return ErrUnreachable
		}
	}

	if t.state == StateProbing && t.probes >= t.maxProbes {
		t.totalRejected++
		t.mutex.Unlock()
		return ErrUnreachable
	}

	t.totalRequests++
	if t.state == StateProbing {
		t.probes++
	}
	t.mutex.Unlock()

	err := fn()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if errors.Is(err, ErrAborted) {
		t.totalAborted++
		if t.state == StateProbing && t.probes > 0 {
			t.probes--
		}
		return err
	}

	if err != nil && t.isFailure(err) {
		t.onFailure()
		t.totalFailures++
		return err
	}

	t.onSuccess()
	t.totalSuccesses++
	return err
}

// Force runs fn regardless of state. It is the explicit attempt that can
// bring an unreachable remote back.
func (t *Tracker) Force(fn func() error) error {
	t.mutex.Lock()
	t.totalRequests++
	t.mutex.Unlock()

	err := fn()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if errors.Is(err, ErrAborted) {
		t.totalAborted++
		if t.state == StateProbing && t.probes > 0 {
			t.probes--
		}
		return err
	}

	if err != nil && t.isFailure(err) {
		t.onFailure()
		t.totalFailures++
		return err
	}

	t.onSuccess()
	t.totalSuccesses++
	return err
}

func (t *Tracker) onSuccess() {
	t.failures = 0

	if t.state != StateReachable {
		t.setState(StateReachable)
		t.probes = 0
	}
}

func (t *Tracker) onFailure() {
	t.failures++
	t.lastFailTime = time.Now()

	if t.state == StateReachable && t.failures >= t.maxFailures {
		t.setState(StateUnreachable)
		t.probes = 0
	} else if t.state == StateProbing {
		t.setState(StateUnreachable)
		t.probes = 0
	}
}

// setState must be called with the mutex held.
func (t *Tracker) setState(newState State) {
	if t.state == newState {
		return
	}

	oldState := t.state
	t.state = newState
	t.stateChanges++
	t.lastStateChange = time.Now()

	t.logger.WithFields(logrus.Fields{
		"tracker":    t.name,
		"from_state": oldState.String(),
		"to_state":   newState.String(),
	}).Info("Connectivity state changed")

	if t.onStateChange != nil {
		go t.runCallback(func() { t.onStateChange(t.name, oldState, newState) })
	}

	if newState == StateUnreachable && !t.wentOffline {
		t.wentOffline = true
		if t.onFirstOffline != nil {
			go t.runCallback(func() { t.onFirstOffline(t.name) })
		}
	}
}

func (t *Tracker) runCallback(fn func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.WithFields(logrus.Fields{
					"tracker": t.name,
					"panic":   r,
				}).Error("Connectivity callback panicked")
			}
			close(done)
		}()

		fn()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.logger.WithFields(logrus.Fields{
			"tracker": t.name,
			"timeout": "5s",
		}).Warn("Connectivity callback timed out")
	}
}

func (t *Tracker) State() State {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}

func (t *Tracker) IsReachable() bool {
	return t.State() == StateReachable
}

// MarkUnreachable takes the remote offline immediately, regardless of the
// failure count.
func (t *Tracker) MarkUnreachable() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastFailTime = time.Now()
	t.setState(StateUnreachable)
	t.probes = 0
}

// MarkReachable is the manual reset.
func (t *Tracker) MarkReachable() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.setState(StateReachable)
	t.failures = 0
	t.probes = 0
	t.lastFailTime = time.Time{}
}

func (t *Tracker) Metrics() map[string]interface{} {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return map[string]interface{}{
		"name":              t.name,
		"state":             t.state.String(),
		"failures":          t.failures,
		"probes":            t.probes,
		"total_requests":    t.totalRequests,
		"total_failures":    t.totalFailures,
		"total_successes":   t.totalSuccesses,
		"total_rejected":    t.totalRejected,
		"total_aborted":     t.totalAborted,
		"state_changes":     t.stateChanges,
		"max_failures":      t.maxFailures,
		"probe_seconds":     t.probeInterval.Seconds(),
		"last_failure":      t.lastFailTime.Format(time.RFC3339),
		"last_state_change": t.lastStateChange.Format(time.RFC3339),
	}
}

func (t *Tracker) String() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return fmt.Sprintf("Tracker(name=%s, state=%s, failures=%d/%d)",
		t.name, t.state.String(), t.failures, t.maxFailures)
}
