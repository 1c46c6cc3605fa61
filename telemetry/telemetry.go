package telemetry

import (
	"time"
)

// DataEvent holds a data sample produced by an emitter.
// The content of `Data` and `Meta` is opaque to the emitters, they are passed through to listeners unchanged.
type DataEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// StatusEvent holds the connection/health state reported by an emitter.
type StatusEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Connected bool           `json:"connected"`
	Bit       bool           `json:"bit"` // built-in test failure flag
	Meta      map[string]any `json:"meta,omitempty"`
}
