package scripted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cepro/scriptedemitter/emitter"
)

var (
	ErrMissingProperties = errors.New("missing required emitterProperties")
	ErrMissingScript     = errors.New("missing required property script")
	ErrInvalidScript     = errors.New("invalid script format")
)

// Factory builds ScriptedEmitters from descriptions whose emitterProperties hold a `script`.
type Factory struct {
	Logger *slog.Logger // handed to every emitter built, optional
}

var _ emitter.Factory = (*Factory)(nil)

func (f *Factory) BuildEmitter(ctx context.Context, desc emitter.Description) (emitter.DataEmitter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.EmitterProperties == nil {
		return nil, ErrMissingProperties
	}
	rawScript, ok := desc.EmitterProperties["script"]
	if !ok || rawScript == nil {
		return nil, ErrMissingScript
	}
	script, err := DecodeScript(rawScript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}

	e, err := New(desc.ID, desc.Name, desc.Description, script, f.Logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}
