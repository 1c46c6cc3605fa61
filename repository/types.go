package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/google/uuid"
)

// StoredEmitterState holds the serialized state of an emitter so that it can be recreated after a restart.
type StoredEmitterState struct {
	EmitterID string `gorm:"primaryKey"`
	Type      string
	State     []byte
	Encrypted bool
	UpdatedAt time.Time
}

// StoredDataEvent represents a data event that is buffered in the SQLite database until it has been uploaded, and
// includes a count of upload attempts.
type StoredDataEvent struct {
	ID                 uuid.UUID `gorm:"primaryKey"`
	EmitterID          string
	Time               time.Time
	Data               string // json encoded
	Meta               string // json encoded
	UploadAttemptCount uint
}

// StoredStatusEvent represents a status event that is buffered in the SQLite database until it has been uploaded.
type StoredStatusEvent struct {
	ID                 uuid.UUID `gorm:"primaryKey"`
	EmitterID          string
	Time               time.Time
	Connected          bool
	Bit                bool
	UploadAttemptCount uint
}

func newStoredDataEvent(emitterID string, evt telemetry.DataEvent) (StoredDataEvent, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return StoredDataEvent{}, fmt.Errorf("marshal data: %w", err)
	}
	meta, err := json.Marshal(evt.Meta)
	if err != nil {
		return StoredDataEvent{}, fmt.Errorf("marshal meta: %w", err)
	}
	return StoredDataEvent{
		ID:                 uuid.New(),
		EmitterID:          emitterID,
		Time:               evt.Timestamp,
		Data:               string(data),
		Meta:               string(meta),
		UploadAttemptCount: 0,
	}, nil
}

func newStoredStatusEvent(emitterID string, evt telemetry.StatusEvent) StoredStatusEvent {
	return StoredStatusEvent{
		ID:                 uuid.New(),
		EmitterID:          emitterID,
		Time:               evt.Timestamp,
		Connected:          evt.Connected,
		Bit:                evt.Bit,
		UploadAttemptCount: 0,
	}
}
