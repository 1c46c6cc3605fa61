package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownType = errors.New("no factory registered for emitter type")

// Description declares an emitter to be built by a Factory.
type Description struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Type              string         `json:"type"`
	EmitterProperties map[string]any `json:"emitterProperties"`
}

// Factory builds emitters of a single type.
type Factory interface {
	BuildEmitter(ctx context.Context, desc Description) (DataEmitter, error)
}

// Provider routes descriptions and persisted state to the Factory registered for their type.
type Provider struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewProvider() *Provider {
	return &Provider{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers `factory` for `emitterType`, replacing any previous registration.
func (p *Provider) RegisterFactory(emitterType string, factory Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[emitterType] = factory
}

func (p *Provider) factory(emitterType string) (Factory, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	factory, ok := p.factories[emitterType]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownType, emitterType)
	}
	return factory, nil
}

// BuildEmitter builds the emitter declared by `desc` using the factory registered for `desc.Type`.
func (p *Provider) BuildEmitter(ctx context.Context, desc Description) (DataEmitter, error) {
	factory, err := p.factory(desc.Type)
	if err != nil {
		return nil, err
	}
	e, err := factory.BuildEmitter(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("build emitter '%s': %w", desc.ID, err)
	}
	return e, nil
}

// RecreateEmitter rebuilds an emitter from state previously produced by SerializeState with the same `settings`.
func (p *Provider) RecreateEmitter(ctx context.Context, state []byte, settings FormatSettings) (DataEmitter, error) {
	plaintext, err := settings.decode(state)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	var desc Description
	err = json.Unmarshal(plaintext, &desc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if desc.Type == "" {
		desc.Type = settings.Type
	}

	return p.BuildEmitter(ctx, desc)
}
