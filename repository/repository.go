package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrStateNotFound = errors.New("no stored state for emitter")

// Repository stores emitter state and buffers emitted events on the local file system (sqlite) before they are
// uploaded to Supabase.
type Repository struct {
	db *gorm.DB
}

// New opens (or creates) the database at `path`. Use ":memory:" for a throwaway database.
func New(path string) (*Repository, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredEmitterState{}, &StoredDataEvent{}, &StoredStatusEvent{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{
		db: db,
	}, nil
}

// SaveState inserts or replaces the stored state of the emitter.
func (r *Repository) SaveState(emitterID, emitterType string, state []byte, encrypted bool) error {
	result := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&StoredEmitterState{
		EmitterID: emitterID,
		Type:      emitterType,
		State:     state,
		Encrypted: encrypted,
		UpdatedAt: time.Now(),
	})
	return result.Error
}

// GetState returns the stored state of the emitter, or ErrStateNotFound.
func (r *Repository) GetState(emitterID string) (StoredEmitterState, error) {
	var state StoredEmitterState
	result := r.db.Where("emitter_id = ?", emitterID).Limit(1).Find(&state)
	if result.Error != nil {
		return StoredEmitterState{}, result.Error
	}
	if result.RowsAffected == 0 {
		return StoredEmitterState{}, fmt.Errorf("%w '%s'", ErrStateNotFound, emitterID)
	}
	return state, nil
}

func (r *Repository) DeleteState(emitterID string) error {
	result := r.db.Where("emitter_id = ?", emitterID).Delete(&StoredEmitterState{})
	return result.Error
}

func (r *Repository) AddDataEvent(emitterID string, evt telemetry.DataEvent) error {
	stored, err := newStoredDataEvent(emitterID, evt)
	if err != nil {
		return err
	}
	result := r.db.Create(&stored)
	return result.Error
}

func (r *Repository) AddStatusEvent(emitterID string, evt telemetry.StatusEvent) error {
	stored := newStoredStatusEvent(emitterID, evt)
	result := r.db.Create(&stored)
	return result.Error
}

// GetDataEvents returns up to `limit` buffered data events. Fresh events have never been through an upload attempt,
// the others have failed at least one.
func (r *Repository) GetDataEvents(limit int, fresh bool) ([]StoredDataEvent, error) {
	var events []StoredDataEvent
	result := bufferQuery(r.db, limit, fresh).Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

// GetStatusEvents returns up to `limit` buffered status events, see GetDataEvents.
func (r *Repository) GetStatusEvents(limit int, fresh bool) ([]StoredStatusEvent, error) {
	var events []StoredStatusEvent
	result := bufferQuery(r.db, limit, fresh).Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

func bufferQuery(db *gorm.DB, limit int, fresh bool) *gorm.DB {
	query := db.Limit(limit).Order("upload_attempt_count asc, time desc")
	if fresh {
		query = query.Where("upload_attempt_count = ?", 0)
	} else {
		query = query.Where("upload_attempt_count > ?", 0)
		// TODO: give up on events after a configurable number of attempts
	}
	return query
}

func (r *Repository) DeleteDataEvents(events []StoredDataEvent) error {
	return r.deleteByID(&StoredDataEvent{}, dataEventIDs(events))
}

func (r *Repository) DeleteStatusEvents(events []StoredStatusEvent) error {
	return r.deleteByID(&StoredStatusEvent{}, statusEventIDs(events))
}

func (r *Repository) IncrementDataUploadAttemptCount(events []StoredDataEvent) error {
	return r.incrementUploadAttemptCount(&StoredDataEvent{}, dataEventIDs(events))
}

func (r *Repository) IncrementStatusUploadAttemptCount(events []StoredStatusEvent) error {
	return r.incrementUploadAttemptCount(&StoredStatusEvent{}, statusEventIDs(events))
}

func (r *Repository) deleteByID(model any, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	result := r.db.Where("id IN ?", ids).Delete(model)
	return result.Error
}

func (r *Repository) incrementUploadAttemptCount(model any, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	result := r.db.Model(model).Where("id IN ?", ids).UpdateColumn("upload_attempt_count", gorm.Expr("upload_attempt_count + ?", 1))
	return result.Error
}

func dataEventIDs(events []StoredDataEvent) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(events))
	for _, evt := range events {
		ids = append(ids, evt.ID)
	}
	return ids
}

func statusEventIDs(events []StoredStatusEvent) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(events))
	for _, evt := range events {
		ids = append(ids, evt.ID)
	}
	return ids
}
