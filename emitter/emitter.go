// Package emitter holds the contract shared by all data emitters: identity, listener registration, commands,
// probing and state persistence. Concrete emitters embed `Base` and register a `Factory` with a `Provider`.
package emitter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cepro/scriptedemitter/telemetry"
)

// Command is an instruction sent to an emitter. The payload format is defined by each emitter type.
type Command struct {
	ActionID string `json:"actionId"`
	Payload  any    `json:"payload"`
}

// ExecutionResult reports the outcome of a Command, echoing its ActionID.
type ExecutionResult struct {
	ActionID      string `json:"actionId"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failureReason,omitempty"`
}

// DataListener is notified of every data event an emitter produces.
type DataListener interface {
	OnData(evt telemetry.DataEvent)
}

// StatusListener is notified of every status event an emitter produces.
type StatusListener interface {
	OnStatus(evt telemetry.StatusEvent)
}

// DataListenerFunc adapts a function to a DataListener.
type DataListenerFunc func(evt telemetry.DataEvent)

func (f DataListenerFunc) OnData(evt telemetry.DataEvent) { f(evt) }

// StatusListenerFunc adapts a function to a StatusListener.
type StatusListenerFunc func(evt telemetry.StatusEvent)

func (f StatusListenerFunc) OnStatus(evt telemetry.StatusEvent) { f(evt) }

// DataEmitter is implemented by every emitter type.
type DataEmitter interface {
	ID() string
	Name() string
	Description() string

	AddDataListener(l DataListener) (remove func())
	AddStatusListener(l StatusListener) (remove func())

	Start()
	Stop()
	SendCommand(cmd Command) ExecutionResult

	ProbeStatus() (telemetry.StatusEvent, error)
	ProbeCurrentData() (telemetry.DataEvent, error)

	// MetaData and EmitterProperties return the configuration needed to rebuild the emitter through its Factory.
	MetaData() any
	EmitterProperties() any
	Type() string

	Dispose()
}

// Base provides identity and listener management for concrete emitters.
// It is safe for concurrent use: listeners are typically notified from timer goroutines.
type Base struct {
	id          string
	name        string
	description string
	logger      *slog.Logger

	mu              sync.Mutex
	nextListenerID  uint64
	dataListeners   map[uint64]DataListener
	statusListeners map[uint64]StatusListener
	disposed        bool
}

// NewBase creates a Base. A nil logger falls back to slog.Default().
func NewBase(id, name, description string, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		id:              id,
		name:            name,
		description:     description,
		logger:          logger.With("emitter_id", id),
		dataListeners:   make(map[uint64]DataListener),
		statusListeners: make(map[uint64]StatusListener),
	}
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

// Logger returns the emitter scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// AddDataListener registers `l` and returns a function that unregisters it.
// Listeners added after Dispose are ignored.
func (b *Base) AddDataListener(l DataListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return func() {}
	}
	id := b.nextListenerID
	b.nextListenerID++
	b.dataListeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.dataListeners, id)
	}
}

// AddStatusListener registers `l` and returns a function that unregisters it.
func (b *Base) AddStatusListener(l StatusListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return func() {}
	}
	id := b.nextListenerID
	b.nextListenerID++
	b.statusListeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.statusListeners, id)
	}
}

// NotifyDataListeners passes `evt` to every registered data listener.
// A panicking listener is logged and does not prevent the remaining listeners from being notified.
func (b *Base) NotifyDataListeners(evt telemetry.DataEvent) {
	b.mu.Lock()
	listeners := make([]DataListener, 0, len(b.dataListeners))
	for _, l := range b.dataListeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		b.safely("data", func() { l.OnData(evt) })
	}
}

// NotifyStatusListeners passes `evt` to every registered status listener.
func (b *Base) NotifyStatusListeners(evt telemetry.StatusEvent) {
	b.mu.Lock()
	listeners := make([]StatusListener, 0, len(b.statusListeners))
	for _, l := range b.statusListeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		b.safely("status", func() { l.OnStatus(evt) })
	}
}

func (b *Base) safely(kind string, notify func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Listener panicked", "listener_kind", kind, "error", fmt.Sprint(r))
		}
	}()
	notify()
}

// Dispose drops all listeners. It is safe to call more than once.
func (b *Base) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	clear(b.dataListeners)
	clear(b.statusListeners)
}

// IsDisposed reports whether Dispose has been called.
func (b *Base) IsDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
