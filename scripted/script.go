package scripted

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cepro/scriptedemitter/telemetry"
)

var (
	ErrEmptyScript   = errors.New("script has no events")
	ErrNegativeDelay = errors.New("negative delay")
	ErrDelayTooLong  = errors.New("delay too long")
)

// MaxDelayMs is the longest delay that can be represented as a time.Duration.
const MaxDelayMs = math.MaxInt64 / int64(time.Millisecond)

// ScriptedEvent is one step of a Script: after waiting DelayToEventMs (measured from the previous event, or from
// Start for the first event) the data and/or status events are emitted. Both may be nil, which makes the step a
// pure delay.
type ScriptedEvent struct {
	DelayToEventMs int64                  `json:"delayToEventMs"`
	DataEvent      *telemetry.DataEvent   `json:"dataEvent,omitempty"`
	StatusEvent    *telemetry.StatusEvent `json:"statusEvent,omitempty"`
}

// Delay returns the wait before the event fires.
func (e ScriptedEvent) Delay() time.Duration {
	return time.Duration(e.DelayToEventMs) * time.Millisecond
}

// Script is a cyclic timeline of events: after the last event the replay returns to the first.
// Scripts are treated as immutable values, they are replaced wholesale and never edited in place.
type Script struct {
	Events []ScriptedEvent `json:"events"`
}

// Validate checks the structural shape of the script. The content of the data and status events is not inspected.
func (s Script) Validate() error {
	if len(s.Events) == 0 {
		return ErrEmptyScript
	}
	for i, evt := range s.Events {
		if evt.DelayToEventMs < 0 {
			return fmt.Errorf("event %d: %w (%dms)", i, ErrNegativeDelay, evt.DelayToEventMs)
		}
		if evt.DelayToEventMs > MaxDelayMs {
			return fmt.Errorf("event %d: %w (%dms, max %dms)", i, ErrDelayTooLong, evt.DelayToEventMs, MaxDelayMs)
		}
	}
	return nil
}

// CycleDuration returns the time taken to play every event of the script once.
func (s Script) CycleDuration() time.Duration {
	total := time.Duration(0)
	for _, evt := range s.Events {
		total += evt.Delay()
	}
	return total
}
