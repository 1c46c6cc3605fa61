package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/scripted"
	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recordingSaver) SaveState(e emitter.DataEmitter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, e.ID())
	return r.err
}

func newTestEmitter(t *testing.T, id string) *scripted.ScriptedEmitter {
	t.Helper()
	e, err := scripted.New(id, "name "+id, "description "+id, scripted.Script{
		Events: []scripted.ScriptedEvent{
			{DelayToEventMs: 10, DataEvent: &telemetry.DataEvent{Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Data: map[string]any{"power": 7.5}}},
			{DelayToEventMs: 10, StatusEvent: &telemetry.StatusEvent{Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Connected: true}},
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(e.Dispose)
	return e
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListEmitters(t *testing.T) {
	server := New([]emitter.DataEmitter{newTestEmitter(t, "b"), newTestEmitter(t, "a")}, nil)

	rec := do(t, server, http.MethodGet, "/emitters", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[
		{"id": "b", "name": "name b", "description": "description b", "type": "SCRIPTED-EMITTER"},
		{"id": "a", "name": "name a", "description": "description a", "type": "SCRIPTED-EMITTER"}
	]`, rec.Body.String())
}

func TestEmitterDetails(t *testing.T) {
	server := New([]emitter.DataEmitter{newTestEmitter(t, "a")}, nil)

	rec := do(t, server, http.MethodGet, "/emitters/a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var details struct {
		ID       string `json:"id"`
		MetaData struct {
			Script struct {
				Events []map[string]any `json:"events"`
			} `json:"script"`
		} `json:"metaData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, "a", details.ID)
	assert.Len(t, details.MetaData.Script.Events, 2)

	rec = do(t, server, http.MethodGet, "/emitters/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "unknown emitter 'missing'"}`, rec.Body.String())
}

func TestSendCommand(t *testing.T) {
	e := newTestEmitter(t, "a")
	saver := &recordingSaver{}
	server := New([]emitter.DataEmitter{e}, saver)

	rec := do(t, server, http.MethodPost, "/emitters/a/commands", `{"actionId": "action-1", "payload": {"commandType": "start"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actionId": "action-1", "success": true}`, rec.Body.String())
	assert.True(t, e.Running())
	assert.Equal(t, []string{"a"}, saver.saved)

	rec = do(t, server, http.MethodPost, "/emitters/a/commands", `{"payload": {"commandType": "rewind"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result emitter.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "unknown command", result.FailureReason)
	assert.NotEmpty(t, result.ActionID, "an action id is generated when none is given")
	assert.Len(t, saver.saved, 1, "state is only saved after a successful command")

	rec = do(t, server, http.MethodPost, "/emitters/a/commands", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodGet, "/emitters/a/commands", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSendCommand_SaveFailureDoesNotFailCommand(t *testing.T) {
	e := newTestEmitter(t, "a")
	server := New([]emitter.DataEmitter{e}, StateSaverFunc(func(emitter.DataEmitter) error {
		return errors.New("disk full")
	}))

	rec := do(t, server, http.MethodPost, "/emitters/a/commands", `{"actionId": "x", "payload": {"commandType": "stop"}}`)
	assert.JSONEq(t, `{"actionId": "x", "success": true}`, rec.Body.String())
}

func TestProbe(t *testing.T) {
	e := newTestEmitter(t, "a")
	server := New([]emitter.DataEmitter{e}, nil)

	rec := do(t, server, http.MethodGet, "/emitters/a/data", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error": "no data available yet"}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/emitters/a/status", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error": "no status available yet"}`, rec.Body.String())

	e.Start()
	require.Eventually(t, func() bool {
		_, err := e.ProbeStatus()
		return err == nil
	}, time.Second, 5*time.Millisecond)
	e.Stop()

	rec = do(t, server, http.MethodGet, "/emitters/a/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"timestamp": "2024-03-01T12:00:00Z", "data": {"power": 7.5}}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/emitters/a/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"timestamp": "2024-03-01T12:00:00Z", "connected": true, "bit": false}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/emitters/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
