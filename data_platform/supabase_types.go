package dataplatform

import (
	"encoding/json"
	"time"

	"github.com/cepro/scriptedemitter/repository"
	"github.com/google/uuid"
)

const (
	dataEventsTable   = "scripted_data_events"
	statusEventsTable = "scripted_status_events"
)

// supabaseDataEvent holds the json encoding schema for a data event in supabase.
type supabaseDataEvent struct {
	ID        uuid.UUID       `json:"id"`
	Time      time.Time       `json:"time"`
	EmitterID string          `json:"emitter_id"`
	Data      json.RawMessage `json:"data"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// supabaseStatusEvent holds the json encoding schema for a status event in supabase.
type supabaseStatusEvent struct {
	ID        uuid.UUID `json:"id"`
	Time      time.Time `json:"time"`
	EmitterID string    `json:"emitter_id"`
	Connected bool      `json:"connected"`
	Bit       bool      `json:"bit"`
}

func convertDataEvents(events []repository.StoredDataEvent) []supabaseDataEvent {
	var supabaseEvents []supabaseDataEvent
	for _, evt := range events {
		converted := supabaseDataEvent{
			ID:        evt.ID,
			Time:      evt.Time,
			EmitterID: evt.EmitterID,
			Data:      json.RawMessage(evt.Data),
		}
		if evt.Meta != "" && evt.Meta != "null" {
			converted.Meta = json.RawMessage(evt.Meta)
		}
		supabaseEvents = append(supabaseEvents, converted)
	}
	return supabaseEvents
}

func convertStatusEvents(events []repository.StoredStatusEvent) []supabaseStatusEvent {
	var supabaseEvents []supabaseStatusEvent
	for _, evt := range events {
		supabaseEvents = append(supabaseEvents, supabaseStatusEvent{
			ID:        evt.ID,
			Time:      evt.Time,
			EmitterID: evt.EmitterID,
			Connected: evt.Connected,
			Bit:       evt.Bit,
		})
	}
	return supabaseEvents
}
