// Package scripted provides an emitter that replays a pre-authored, cyclic timeline of data and status events.
// It stands in for real devices so that listeners, dashboards and integration tests can be exercised without
// hardware.
package scripted

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/telemetry"
)

// EmitterType identifies scripted emitters in descriptions and persisted state.
const EmitterType = "SCRIPTED-EMITTER"

var (
	ErrNoStatus = errors.New("no status available yet")
	ErrNoData   = errors.New("no data available yet")
)

// Properties is the configuration of a ScriptedEmitter, as exported for persistence.
type Properties struct {
	Script Script `json:"script"`
}

// ScriptedEmitter replays a Script to its listeners and remembers the last data and status events it emitted.
//
// The replay is controlled with Start/Stop or with commands (see SendCommand). After the last event of the script
// the replay loops back to the first.
type ScriptedEmitter struct {
	*emitter.Base

	scheduler *scheduler

	mu         sync.Mutex
	lastData   *telemetry.DataEvent
	lastStatus *telemetry.StatusEvent
}

var _ emitter.DataEmitter = (*ScriptedEmitter)(nil)

// New creates a stopped ScriptedEmitter. A nil logger falls back to slog.Default().
func New(id, name, description string, script Script, logger *slog.Logger) (*ScriptedEmitter, error) {
	err := script.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &ScriptedEmitter{
		Base: emitter.NewBase(id, name, description, logger.With("emitter_type", EmitterType)),
	}
	e.scheduler = newScheduler(script, e.tick, e.Logger())
	return e, nil
}

// tick emits the event that has just come due. `live` reports false once the replay has been stopped or disposed,
// after which the remaining half of the event is dropped.
func (e *ScriptedEmitter) tick(evt ScriptedEvent, live func() bool) {
	e.Logger().Debug("Firing scripted event", "has_data", evt.DataEvent != nil, "has_status", evt.StatusEvent != nil)

	if evt.DataEvent != nil && live() {
		e.mu.Lock()
		e.lastData = evt.DataEvent
		e.mu.Unlock()
		e.NotifyDataListeners(*evt.DataEvent)
	}
	if evt.StatusEvent != nil && live() {
		e.mu.Lock()
		e.lastStatus = evt.StatusEvent
		e.mu.Unlock()
		e.NotifyStatusListeners(*evt.StatusEvent)
	}
}

// Start begins (or resumes) replaying the script. Calling Start on a running or disposed emitter does nothing.
func (e *ScriptedEmitter) Start() {
	if e.scheduler.start() {
		e.Logger().Info("Started script")
	}
}

// Stop pauses the replay. No further events are emitted until Start is called again.
func (e *ScriptedEmitter) Stop() {
	if e.scheduler.stop() {
		e.Logger().Info("Stopped script")
	}
}

// Running reports whether the replay is active.
func (e *ScriptedEmitter) Running() bool {
	return e.scheduler.running()
}

// Script returns the script currently being replayed.
func (e *ScriptedEmitter) Script() Script {
	return e.scheduler.currentScript()
}

// ProbeStatus returns the last status event emitted.
func (e *ScriptedEmitter) ProbeStatus() (telemetry.StatusEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastStatus == nil {
		return telemetry.StatusEvent{}, ErrNoStatus
	}
	return *e.lastStatus, nil
}

// ProbeCurrentData returns the last data event emitted.
func (e *ScriptedEmitter) ProbeCurrentData() (telemetry.DataEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastData == nil {
		return telemetry.DataEvent{}, ErrNoData
	}
	return *e.lastData, nil
}

func (e *ScriptedEmitter) MetaData() any {
	return Properties{Script: e.Script()}
}

func (e *ScriptedEmitter) EmitterProperties() any {
	return Properties{Script: e.Script()}
}

func (e *ScriptedEmitter) Type() string {
	return EmitterType
}

// Dispose drops all listeners and stops the replay for good. It is safe to call more than once.
func (e *ScriptedEmitter) Dispose() {
	e.scheduler.dispose()
	e.Base.Dispose()
}
