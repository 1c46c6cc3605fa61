package scripted

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type schedulerState string

const (
	stateIdle      schedulerState = "idle"
	stateScheduled schedulerState = "scheduled"
)

// scheduler replays a Script by arming one timer per event, each timer re-arming the next once its event has
// been handled. At most one timer is outstanding at any time.
type scheduler struct {
	mu     sync.Mutex
	state  schedulerState
	script Script
	cursor uint64 // index of the next event to arm, reduced modulo the script length
	timer  *time.Timer

	// generation is bumped on every start and stop so that the callback of a timer that was cancelled too late
	// to be stopped can recognise that it is stale.
	generation uint64
	disposed   bool

	tick   func(evt ScriptedEvent, live func() bool)
	logger *slog.Logger
}

func newScheduler(script Script, tick func(ScriptedEvent, func() bool), logger *slog.Logger) *scheduler {
	return &scheduler{
		state:  stateIdle,
		script: script,
		tick:   tick,
		logger: logger,
	}
}

// start arms the timer for the event under the cursor. It returns false, and does nothing, if the scheduler is
// already running or has been disposed.
func (s *scheduler) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || s.state == stateScheduled {
		return false
	}
	s.state = stateScheduled
	s.generation++
	s.arm()
	return true
}

// stop cancels the outstanding timer. The cursor is kept so that a later start resumes where the replay stopped.
func (s *scheduler) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// dispose stops the scheduler for good, later calls to start are ignored.
func (s *scheduler) dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.stopLocked()
}

func (s *scheduler) stopLocked() bool {
	if s.state == stateIdle {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = stateIdle
	s.generation++
	return true
}

// arm must be called with the lock held.
// The event is captured when the timer is armed: replacing the script does not affect an event already in flight.
func (s *scheduler) arm() {
	evt := s.script.Events[s.cursor%uint64(len(s.script.Events))]
	generation := s.generation
	s.timer = time.AfterFunc(evt.Delay(), func() {
		s.fire(generation, evt)
	})
}

// fire runs on the timer goroutine.
func (s *scheduler) fire(generation uint64, evt ScriptedEvent) {
	s.mu.Lock()
	if s.state != stateScheduled || s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.cursor++
	s.timer = nil
	s.mu.Unlock()

	// the lock is not held while listeners run so they are free to stop, restart or reconfigure the replay
	defer s.rearm(generation)
	s.tick(evt, func() bool { return s.current(generation) })
}

// current reports whether `generation` is still the active run, i.e. no stop or dispose happened since it was armed.
func (s *scheduler) current(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateScheduled && s.generation == generation
}

func (s *scheduler) rearm(generation uint64) {
	if r := recover(); r != nil {
		s.logger.Error("Scripted event handling panicked", "error", fmt.Sprint(r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateScheduled || s.generation != generation || s.timer != nil {
		return
	}
	s.arm()
}

func (s *scheduler) replaceScript(script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = script
}

func (s *scheduler) currentScript() Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

func (s *scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateScheduled
}
