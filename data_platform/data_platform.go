package dataplatform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/repository"
	"github.com/cepro/scriptedemitter/telemetry"
)

// uploadChunkLimit defines how many events we can upload in one supabase HTTP request
const uploadChunkLimit = 100

// Uploader inserts rows into a named table of the data platform, it is implemented by supabase.Client.
type Uploader interface {
	Upload(table string, rows any) error
}

type emitterDataEvent struct {
	emitterID string
	evt       telemetry.DataEvent
}

type emitterStatusEvent struct {
	emitterID string
	evt       telemetry.StatusEvent
}

// DataPlatform handles the streaming of emitted events to Supabase.
// Attach emitters to have their events buffered on disk in a SQLite database before being uploaded.
type DataPlatform struct {
	dataEvents   chan emitterDataEvent
	statusEvents chan emitterStatusEvent

	repository *repository.Repository
	uploader   Uploader
	logger     *slog.Logger
}

func New(uploader Uploader, repo *repository.Repository) *DataPlatform {
	return &DataPlatform{
		dataEvents:   make(chan emitterDataEvent, 25), // a small buffer to allow SQLite to catch up in case the disk is slow
		statusEvents: make(chan emitterStatusEvent, 25),
		repository:   repo,
		uploader:     uploader,
		logger:       slog.Default().With("component", "data_platform"),
	}
}

// Attach listens to the events of `e` and returns a function that detaches again.
// Listeners never block the emitter: if the buffer is full the event is dropped with a warning.
func (d *DataPlatform) Attach(e emitter.DataEmitter) (detach func()) {
	emitterID := e.ID()
	removeData := e.AddDataListener(emitter.DataListenerFunc(func(evt telemetry.DataEvent) {
		select {
		case d.dataEvents <- emitterDataEvent{emitterID: emitterID, evt: evt}:
		default:
			d.logger.Warn("Dropped data event, buffer full", "emitter_id", emitterID)
		}
	}))
	removeStatus := e.AddStatusListener(emitter.StatusListenerFunc(func(evt telemetry.StatusEvent) {
		select {
		case d.statusEvents <- emitterStatusEvent{emitterID: emitterID, evt: evt}:
		default:
			d.logger.Warn("Dropped status event, buffer full", "emitter_id", emitterID)
		}
	}))
	return func() {
		removeData()
		removeStatus()
	}
}

// Run loops until the context is cancelled, storing events as they arrive and uploading every `uploadInterval`.
func (d *DataPlatform) Run(ctx context.Context, uploadInterval time.Duration) {

	uploadTicker := time.NewTicker(uploadInterval)
	defer uploadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-d.dataEvents:
			err := d.repository.AddDataEvent(item.emitterID, item.evt)
			if err != nil {
				d.logger.Error("Failed to persist data event", "emitter_id", item.emitterID, "error", err)
				continue
			}
			d.logger.Debug("Stored data event", "emitter_id", item.emitterID)

		case item := <-d.statusEvents:
			err := d.repository.AddStatusEvent(item.emitterID, item.evt)
			if err != nil {
				d.logger.Error("Failed to persist status event", "emitter_id", item.emitterID, "error", err)
				continue
			}
			d.logger.Debug("Stored status event", "emitter_id", item.emitterID)

		case <-uploadTicker.C:
			d.attemptUpload()
		}
	}
}

// attemptUpload attempts to upload the buffered events from the repository into Supabase. Fresh events that have not
// been seen before go first, then any old events that have already failed an upload at least once.
func (d *DataPlatform) attemptUpload() {
	for _, fresh := range []bool{true, false} {
		dataEvents, err := d.repository.GetDataEvents(uploadChunkLimit, fresh)
		if err != nil {
			d.logger.Error("Failed to query data events", "fresh", fresh, "error", err)
		} else if len(dataEvents) > 0 {
			err = d.handleDataEvents(dataEvents)
			if err != nil {
				d.logger.Error("Failed to handle data events", "fresh", fresh, "error", err)
			}
		}

		statusEvents, err := d.repository.GetStatusEvents(uploadChunkLimit, fresh)
		if err != nil {
			d.logger.Error("Failed to query status events", "fresh", fresh, "error", err)
		} else if len(statusEvents) > 0 {
			err = d.handleStatusEvents(statusEvents)
			if err != nil {
				d.logger.Error("Failed to handle status events", "fresh", fresh, "error", err)
			}
		}
	}
}

// handleDataEvents attempts to upload the given events. If successful, it deletes the events from the database, if
// unsuccessful, it increments the 'upload attempt count' column and leaves the events in the database for another time.
func (d *DataPlatform) handleDataEvents(events []repository.StoredDataEvent) error {
	uploadErr := d.uploader.Upload(dataEventsTable, convertDataEvents(events))
	if uploadErr != nil {
		uploadErr = fmt.Errorf("upload failed: %w", uploadErr)
		errInc := d.repository.IncrementDataUploadAttemptCount(events)
		if errInc != nil {
			return fmt.Errorf("%w: increment upload attempt count: %w", uploadErr, errInc)
		}
		return uploadErr
	}

	err := d.repository.DeleteDataEvents(events)
	if err != nil {
		return fmt.Errorf("delete data events: %w", err)
	}

	d.logger.Info("Uploaded events", "db_table", dataEventsTable, "db_records", len(events))
	return nil
}

func (d *DataPlatform) handleStatusEvents(events []repository.StoredStatusEvent) error {
	uploadErr := d.uploader.Upload(statusEventsTable, convertStatusEvents(events))
	if uploadErr != nil {
		uploadErr = fmt.Errorf("upload failed: %w", uploadErr)
		errInc := d.repository.IncrementStatusUploadAttemptCount(events)
		if errInc != nil {
			return fmt.Errorf("%w: increment upload attempt count: %w", uploadErr, errInc)
		}
		return uploadErr
	}

	err := d.repository.DeleteStatusEvents(events)
	if err != nil {
		return fmt.Errorf("delete status events: %w", err)
	}

	d.logger.Info("Uploaded events", "db_table", statusEventsTable, "db_records", len(events))
	return nil
}
