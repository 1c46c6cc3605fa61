package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cepro/scriptedemitter/config"
	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/repository"
)

// stateStore persists the state of emitters so that changes made by commands (e.g. a replaced script) survive a
// restart.
type stateStore struct {
	repo *repository.Repository
	conf config.Config
}

// save serializes `e` and stores it, replacing any previous state.
func (s *stateStore) save(e emitter.DataEmitter) error {
	settings := s.conf.StateFormat(e.Type())
	state, err := emitter.SerializeState(e, settings)
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	err = s.repo.SaveState(e.ID(), e.Type(), state, settings.Encrypted)
	if err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}

// SaveState implements api.StateSaver.
func (s *stateStore) SaveState(e emitter.DataEmitter) error {
	return s.save(e)
}

// restore recreates the emitter from its stored state. It returns false if there is no usable stored state.
func (s *stateStore) restore(ctx context.Context, provider *emitter.Provider, emitterID string) (emitter.DataEmitter, bool) {
	logger := slog.Default().With("emitter_id", emitterID)

	stored, err := s.repo.GetState(emitterID)
	if errors.Is(err, repository.ErrStateNotFound) {
		return nil, false
	}
	if err != nil {
		logger.Error("Failed to load stored state", "error", err)
		return nil, false
	}

	settings := s.conf.StateFormat(stored.Type)
	if stored.Encrypted != settings.Encrypted {
		logger.Warn("Ignoring stored state with a different encryption setting", "stored_encrypted", stored.Encrypted)
		return nil, false
	}

	e, err := provider.RecreateEmitter(ctx, stored.State, settings)
	if err != nil {
		logger.Warn("Ignoring stored state that could not be recreated", "error", err)
		return nil, false
	}
	if e.ID() != emitterID {
		logger.Warn("Ignoring stored state of another emitter", "stored_emitter_id", e.ID())
		e.Dispose()
		return nil, false
	}
	return e, true
}

// buildEmitter returns the emitter described by `ec`, restored from its stored state when there is one. `store` may be
// nil.
func buildEmitter(ctx context.Context, provider *emitter.Provider, store *stateStore, ec config.EmitterConfig) (emitter.DataEmitter, error) {
	if store != nil {
		e, ok := store.restore(ctx, provider, ec.ID)
		if ok {
			slog.Info("Restored emitter from stored state", "emitter_id", ec.ID)
			return e, nil
		}
	}

	e, err := provider.BuildEmitter(ctx, ec.EmitterDescription())
	if err != nil {
		return nil, err
	}

	if store != nil {
		err = store.save(e)
		if err != nil {
			e.Dispose()
			return nil, fmt.Errorf("save state of emitter '%s': %w", ec.ID, err)
		}
	}
	return e, nil
}
