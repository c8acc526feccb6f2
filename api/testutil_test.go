package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/store/sqlite"
)

// clock is the fixed "now" of every API test: a Thursday in April 2025.
var clock = time.Date(2025, time.April, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, zap.NewNop())
	h.Now = func() time.Time { return clock }
	h.Scheduler.Now = h.Now
	return h, NewRouter(h, nil)
}

// call sends body (a string is sent verbatim, anything else as JSON) with
// actor in the actor header when set.
func call(t *testing.T, srv http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func loadSingleApprover(t *testing.T, srv http.Handler) {
	t.Helper()
	rec := call(t, srv, http.MethodPost, "/api/master", "", singleApproverMaster)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// apply submits an attendance request for P001 and returns its workflow.
func apply(t *testing.T, srv http.Handler, date string) WorkflowDTO {
	t.Helper()
	rec := call(t, srv, http.MethodPost, "/api/requests", "", map[string]any{
		"kind": "attendance", "personal_id": "P001", "date": date, "submit": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RequestDTO](t, rec).Workflow
}

func hasMessage(resp ErrorResponse, code, field string) bool {
	for _, m := range resp.Messages {
		if m.Code == code && m.Field == field {
			return true
		}
	}
	return false
}
