package scripted

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider() *emitter.Provider {
	provider := emitter.NewProvider()
	provider.RegisterFactory(EmitterType, &Factory{})
	return provider
}

func testDescription() emitter.Description {
	return emitter.Description{
		ID:          "test-id",
		Name:        "test-name",
		Description: "test-description",
		Type:        EmitterType,
		EmitterProperties: map[string]any{
			"script": fourStepScript(),
		},
	}
}

func randomBase64(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}

// validateEmitter checks that `e` was built to the test description.
func validateEmitter(t *testing.T, e emitter.DataEmitter) {
	t.Helper()
	require.IsType(t, &ScriptedEmitter{}, e)
	assert.Equal(t, "test-id", e.ID())
	assert.Equal(t, "test-name", e.Name())
	assert.Equal(t, "test-description", e.Description())

	props, ok := e.MetaData().(Properties)
	require.True(t, ok)

	// compare field by field as a round trip through json drops the monotonic clock and location of timestamps
	expected := fourStepScript()
	require.Len(t, props.Script.Events, len(expected.Events))
	for i, evt := range expected.Events {
		actual := props.Script.Events[i]
		assert.Equal(t, evt.DelayToEventMs, actual.DelayToEventMs)
		if evt.DataEvent == nil {
			assert.Nil(t, actual.DataEvent)
		} else {
			require.NotNil(t, actual.DataEvent)
			assert.True(t, evt.DataEvent.Timestamp.Equal(actual.DataEvent.Timestamp))
			assert.Equal(t, evt.DataEvent.Data, actual.DataEvent.Data)
		}
		if evt.StatusEvent == nil {
			assert.Nil(t, actual.StatusEvent)
		} else {
			require.NotNil(t, actual.StatusEvent)
			assert.Equal(t, evt.StatusEvent.Connected, actual.StatusEvent.Connected)
			assert.Equal(t, evt.StatusEvent.Bit, actual.StatusEvent.Bit)
		}
	}
}

func TestFactory_BuildEmitter(t *testing.T) {
	e, err := newTestProvider().BuildEmitter(context.Background(), testDescription())
	require.NoError(t, err)
	defer e.Dispose()

	validateEmitter(t, e)
	assert.Equal(t, Properties{Script: fourStepScript()}, e.MetaData())
}

func TestFactory_BuildEmitterFailures(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]any
		expected error
	}{
		{name: "no properties", props: nil, expected: ErrMissingProperties},
		{name: "no script", props: map[string]any{}, expected: ErrMissingScript},
		{name: "null script", props: map[string]any{"script": nil}, expected: ErrMissingScript},
		{name: "script of the wrong shape", props: map[string]any{"script": 42}, expected: ErrInvalidScript},
		{name: "empty script", props: map[string]any{"script": Script{}}, expected: ErrEmptyScript},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescription()
			desc.EmitterProperties = tt.props

			e, err := (&Factory{}).BuildEmitter(context.Background(), desc)
			assert.ErrorIs(t, err, tt.expected)
			assert.Nil(t, e)
		})
	}
}

func TestFactory_BuildEmitterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Factory{}).BuildEmitter(ctx, testDescription())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider_RecreateEmitter(t *testing.T) {
	tests := []struct {
		name     string
		settings func(t *testing.T) emitter.FormatSettings
	}{
		{
			name: "plaintext",
			settings: func(t *testing.T) emitter.FormatSettings {
				return emitter.FormatSettings{Encrypted: false, Type: EmitterType}
			},
		},
		{
			name: "aes-256-gcm ciphertext",
			settings: func(t *testing.T) emitter.FormatSettings {
				return emitter.FormatSettings{
					Encrypted: true,
					Type:      EmitterType,
					Algorithm: emitter.AlgorithmAES256GCM,
					Key:       randomBase64(t, 32),
					IV:        randomBase64(t, 64),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider()
			settings := tt.settings(t)

			e, err := provider.BuildEmitter(context.Background(), testDescription())
			require.NoError(t, err)
			defer e.Dispose()
			validateEmitter(t, e)

			state, err := emitter.SerializeState(e, settings)
			require.NoError(t, err)

			recreated, err := provider.RecreateEmitter(context.Background(), state, settings)
			require.NoError(t, err)
			defer recreated.Dispose()
			validateEmitter(t, recreated)
		})
	}
}

func TestProvider_RecreateEmitterWithWrongKey(t *testing.T) {
	provider := newTestProvider()
	settings := emitter.FormatSettings{
		Encrypted: true,
		Type:      EmitterType,
		Algorithm: emitter.AlgorithmAES256GCM,
		Key:       randomBase64(t, 32),
		IV:        randomBase64(t, 12),
	}

	e, err := provider.BuildEmitter(context.Background(), testDescription())
	require.NoError(t, err)
	defer e.Dispose()

	state, err := emitter.SerializeState(e, settings)
	require.NoError(t, err)

	settings.Key = randomBase64(t, 32)
	_, err = provider.RecreateEmitter(context.Background(), state, settings)
	assert.Error(t, err)
}
