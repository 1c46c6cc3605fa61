package scripted

import (
	"sync"
	"testing"
	"time"

	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/stretchr/testify/require"
)

// This file contains utilities to help with testing

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dataEvent(key string) *telemetry.DataEvent {
	return &telemetry.DataEvent{
		Timestamp: epoch,
		Data:      map[string]any{key: key},
		Meta:      map[string]any{},
	}
}

func statusEvent(connected bool) *telemetry.StatusEvent {
	return &telemetry.StatusEvent{
		Timestamp: epoch,
		Connected: connected,
		Bit:       false,
	}
}

// fourStepScript is data, status, data, data with 100ms between each event.
func fourStepScript() Script {
	return Script{
		Events: []ScriptedEvent{
			{DelayToEventMs: 100, DataEvent: dataEvent("test1")},
			{DelayToEventMs: 100, StatusEvent: statusEvent(true)},
			{DelayToEventMs: 100, DataEvent: dataEvent("test2")},
			{DelayToEventMs: 100, DataEvent: dataEvent("test3")},
		},
	}
}

// evenlySpacedScript returns a script with one data event per key, `delay` apart.
func evenlySpacedScript(delay time.Duration, keys ...string) Script {
	script := Script{}
	for _, key := range keys {
		script.Events = append(script.Events, ScriptedEvent{
			DelayToEventMs: delay.Milliseconds(),
			DataEvent:      dataEvent(key),
		})
	}
	return script
}

func newTestEmitter(t *testing.T, script Script) *ScriptedEmitter {
	t.Helper()
	e, err := New("test-id", "test-name", "test-description", script, nil)
	require.NoError(t, err)
	t.Cleanup(e.Dispose)
	return e
}

// recorder collects everything emitted to it.
type recorder struct {
	mu     sync.Mutex
	data   []telemetry.DataEvent
	status []telemetry.StatusEvent
}

func (r *recorder) OnData(evt telemetry.DataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, evt)
}

func (r *recorder) OnStatus(evt telemetry.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, evt)
}

// dataKeys returns the single key of each data event received, in order.
func (r *recorder) dataKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.data))
	for _, evt := range r.data {
		for key := range evt.Data {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *recorder) numStatus() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.status)
}

func listen(e *ScriptedEmitter) *recorder {
	r := &recorder{}
	e.AddDataListener(r)
	e.AddStatusListener(r)
	return r
}
