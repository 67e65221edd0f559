package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/elvia2mqtt/internal/adapter/actor"
	"github.com/berfenger/elvia2mqtt/internal/adapter/storage"
	coreactor "github.com/berfenger/elvia2mqtt/internal/core/actor"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/internal/core/service"
	"github.com/berfenger/elvia2mqtt/internal/util"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRoundTripper struct {
	Handler func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Handler(req)
}

// elviaAPI accepts token abc, rejects bad with 401 and anything else with 403.
func elviaAPI(req *http.Request) (*http.Response, error) {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	status, body := http.StatusForbidden, `{}`
	switch req.Header.Get("Authorization") {
	case "Bearer abc":
		status = http.StatusOK
		body = `{"meteringpoints": [{"meteringPointId": "707057500000000001"}]}`
	case "Bearer bad":
		status = http.StatusUnauthorized
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}, nil
}

type fixture struct {
	handler http.Handler
	mqtt    *adactor.MQTTActor
}

func newFixture(t *testing.T) *fixture {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	newClient := func(token string) port.MeterClient {
		opts := elvia.DefaultOptions()
		opts.Timeout = cfg.Elvia.Timeout()
		opts.Transport = &MockRoundTripper{Handler: elviaAPI}
		return elvia.NewClient(token, opts)
	}

	dummy := adactor.NewTestMQTTActor(&cfg, logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterOfPuppetsActor(cfg, func() *adactor.MQTTActor {
			return dummy
		}, func(platform port.PlatformAdapter) port.Integration {
			return service.NewCoordinator(newClient, platform, logger)
		}, storage.NewEntryFile(""), logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() { as.Root.Stop(pid) })

	srv := NewServer(cfg, as.Root, pid, service.NewConfigFlow(newClient, logger))
	return &fixture{handler: srv.Handler, mqtt: dummy}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type flowResponse struct {
	Type       string            `json:"type"`
	StepId     string            `json:"step_id"`
	Title      string            `json:"title"`
	Errors     map[string]string `json:"errors"`
	DataSchema []map[string]any  `json:"data_schema"`
	Entry      struct {
		EntryId string `json:"entry_id"`
		Title   string `json:"title"`
		State   string `json:"state"`
	} `json:"entry"`
}

func TestHealthCheck(t *testing.T) {

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestShowUserStep(t *testing.T) {

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/flow/user", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[flowResponse](t, rec)
	assert.Equal(t, "form", res.Type)
	assert.Equal(t, "user", res.StepId)
	require.Len(t, res.DataSchema, 5)
	assert.Equal(t, "token", res.DataSchema[0]["name"])
	assert.Empty(t, res.Errors)
}

func TestSubmitUserStepCreatesEntry(t *testing.T) {

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/flow/user", `{"token": "abc"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[flowResponse](t, rec)
	assert.Equal(t, "create_entry", res.Type)
	assert.Equal(t, "elvia", res.Title)
	assert.Equal(t, "elvia", res.Entry.Title)
	assert.Equal(t, "loaded", res.Entry.State)
	assert.NotEmpty(t, res.Entry.EntryId)
	assert.NotContains(t, rec.Body.String(), `"abc"`, "token is never echoed")

	// bridge plus meter count, one metering point and four flags
	assert.Eventually(t, func() bool {
		return len(f.mqtt.Recorder().Announced()) == 7
	}, 2*time.Second, 50*time.Millisecond)

	rec = f.do(t, http.MethodGet, "/api/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Entries []struct {
			EntryId string `json:"entry_id"`
			State   string `json:"state"`
		} `json:"entries"`
	}](t, rec)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, res.Entry.EntryId, list.Entries[0].EntryId)

	rec = f.do(t, http.MethodPost, "/api/entries/"+res.Entry.EntryId+"/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"state":"loaded"`)

	rec = f.do(t, http.MethodDelete, "/api/entries/"+res.Entry.EntryId, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, f.mqtt.Recorder().Removed())

	rec = f.do(t, http.MethodDelete, "/api/entries/"+res.Entry.EntryId, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitUserStepErrors(t *testing.T) {

	f := newFixture(t)

	for token, code := range map[string]string{
		"bad":   "invalid_auth",
		"other": "forbidden_call",
	} {
		rec := f.do(t, http.MethodPost, "/api/flow/user", `{"token": "`+token+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[flowResponse](t, rec)
		assert.Equal(t, "form", res.Type)
		assert.Equal(t, code, res.Errors["base"], token)
	}

	rec := f.do(t, http.MethodPost, "/api/flow/user", `{"cost_period": false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/entries", "")
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestReloadUnknownEntry(t *testing.T) {

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/entries/nope/reload", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
