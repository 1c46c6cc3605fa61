package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return repo
}

func TestState(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetState("emitter-1")
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, repo.SaveState("emitter-1", "SCRIPTED-EMITTER", []byte(`{"id":"emitter-1"}`), false))
	require.NoError(t, repo.SaveState("emitter-1", "SCRIPTED-EMITTER", []byte("Y2lwaGVydGV4dA=="), true))

	state, err := repo.GetState("emitter-1")
	require.NoError(t, err)
	assert.Equal(t, "emitter-1", state.EmitterID)
	assert.Equal(t, "SCRIPTED-EMITTER", state.Type)
	assert.Equal(t, []byte("Y2lwaGVydGV4dA=="), state.State)
	assert.True(t, state.Encrypted)

	require.NoError(t, repo.DeleteState("emitter-1"))
	_, err = repo.GetState("emitter-1")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestDataEventBuffer(t *testing.T) {
	repo := newTestRepository(t)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := repo.AddDataEvent("emitter-1", telemetry.DataEvent{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Data:      map[string]any{"index": i},
		})
		require.NoError(t, err)
	}

	fresh, err := repo.GetDataEvents(10, true)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.True(t, fresh[0].Time.Equal(start.Add(2*time.Second)), "newest events come first")
	assert.JSONEq(t, `{"index": 2}`, fresh[0].Data)
	assert.Equal(t, "emitter-1", fresh[0].EmitterID)

	require.NoError(t, repo.IncrementDataUploadAttemptCount(fresh[:2]))

	fresh, err = repo.GetDataEvents(10, true)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	old, err := repo.GetDataEvents(10, false)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, uint(1), old[0].UploadAttemptCount)

	limited, err := repo.GetDataEvents(1, false)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, repo.DeleteDataEvents(old))
	require.NoError(t, repo.DeleteDataEvents(nil))

	old, err = repo.GetDataEvents(10, false)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestStatusEventBuffer(t *testing.T) {
	repo := newTestRepository(t)

	now := time.Now()
	require.NoError(t, repo.AddStatusEvent("emitter-1", telemetry.StatusEvent{Timestamp: now, Connected: true}))
	require.NoError(t, repo.AddStatusEvent("emitter-1", telemetry.StatusEvent{Timestamp: now, Bit: true}))

	fresh, err := repo.GetStatusEvents(10, true)
	require.NoError(t, err)
	require.Len(t, fresh, 2)

	require.NoError(t, repo.IncrementStatusUploadAttemptCount(fresh))
	require.NoError(t, repo.IncrementStatusUploadAttemptCount(fresh))

	old, err := repo.GetStatusEvents(10, false)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, uint(2), old[0].UploadAttemptCount)

	require.NoError(t, repo.DeleteStatusEvents(old))
	fresh, err = repo.GetStatusEvents(10, true)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}
