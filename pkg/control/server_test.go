package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/plana/pkg/models"
)

type fakeOperator struct {
	status    Status
	flushErr  error
	refreshed []string
}

func (f *fakeOperator) Status() Status { return f.status }

func (f *fakeOperator) Flush(context.Context) (int, int, error) { return 3, 1, f.flushErr }

func (f *fakeOperator) RefreshGuild(_ context.Context, id models.Snowflake, setting string) error {
	f.refreshed = append(f.refreshed, id.String()+":"+setting)
	return nil
}

func serve(t *testing.T, op Operator, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer("127.0.0.1:0", op)
	require.NotNil(t, s)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestNewServerDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewServer(" ", &fakeOperator{}))
	var s *Server
	assert.NoError(t, s.Start())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestHealthFollowsBusState(t *testing.T) {
	op := &fakeOperator{status: Status{Bus: "subscribed"}}
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, op, http.MethodGet, "/healthz", "").Code)

	op.status.Bus = "listening"
	assert.Equal(t, http.StatusOK, serve(t, op, http.MethodGet, "/healthz", "").Code)
}

func TestStatus(t *testing.T) {
	op := &fakeOperator{status: Status{Bus: "listening", Topics: []string{"events:*"}, DirtyUsers: 4}}
	rec := serve(t, op, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, op.status, got)
}

func TestFlush(t *testing.T) {
	op := &fakeOperator{}
	rec := serve(t, op, http.MethodPost, "/v1/flush", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"users":3`)

	op.flushErr = errors.New("backend down")
	assert.Equal(t, http.StatusBadGateway, serve(t, op, http.MethodPost, "/v1/flush", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, op, http.MethodGet, "/v1/flush", "").Code)
}

func TestRefresh(t *testing.T) {
	op := &fakeOperator{}
	assert.Equal(t, http.StatusOK, serve(t, op, http.MethodPost, "/v1/guilds/42/refresh", `{"name":"levels"}`).Code)
	assert.Equal(t, http.StatusOK, serve(t, op, http.MethodPost, "/v1/guilds/42/refresh", "").Code)
	assert.Equal(t, []string{"42:levels", "42:"}, op.refreshed)

	assert.Equal(t, http.StatusBadRequest, serve(t, op, http.MethodPost, "/v1/guilds/abc/refresh", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, op, http.MethodPost, "/v1/guilds/42/refresh", `{"name":"music"}`).Code)
	assert.Len(t, op.refreshed, 2)
}

func TestStartAndStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", &fakeOperator{status: Status{Bus: "listening"}})
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
