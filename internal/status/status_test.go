package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glycoiq-ble/internal/dispatch"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHealth(t *testing.T) {
	h := NewHandler(SourceFunc(func() (Report, error) { return Report{}, nil }), quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","service":"glycoiq-ble"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := SourceFunc(func() (Report, error) {
		return Report{
			Advertisement: "registered",
			Subscribed:    true,
			LastPayload:   `{"status": "success"}`,
			Dispatch: dispatch.Stats{
				Total:    2,
				Failures: 1,
				Last: &dispatch.Record{
					ID:       "01HZX",
					Command:  "run_device",
					Outcome:  dispatch.OutcomeSuccess,
					Payload:  `{"status": "success"}`,
					Finished: finished,
				},
			},
		}, nil
	})
	h := NewHandler(source, quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "registered", got.Advertisement)
	assert.True(t, got.Subscribed)
	assert.Equal(t, `{"status": "success"}`, got.LastPayload)
	assert.Equal(t, 2, got.Dispatch.Total)
	assert.Equal(t, 1, got.Dispatch.Failures)
	require.NotNil(t, got.Dispatch.Last)
	assert.Equal(t, dispatch.OutcomeSuccess, got.Dispatch.Last.Outcome)
	assert.True(t, finished.Equal(got.Dispatch.Last.Finished))
}

func TestStatusUnavailable(t *testing.T) {
	h := NewHandler(SourceFunc(func() (Report, error) {
		return Report{}, errors.New("event loop stopped")
	}), quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"peripheral not running","code":503}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := NewHandler(SourceFunc(func() (Report, error) { return Report{}, nil }), quietLogger())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	h := NewHandler(SourceFunc(func() (Report, error) { return Report{}, nil }), quietLogger())
	srv := NewServer("127.0.0.1:0", h)

	ln, err := srv.Listen()
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", ln.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-served)
}
