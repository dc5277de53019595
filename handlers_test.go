package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiostream/pkg/radio"
)

func newTestServer(t *testing.T) (*testRig, *Server, *httptest.Server) {
	t.Helper()
	rig := newTestStation(t, nil)
	srv := newServer(rig.st, rig.reg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return rig, srv, ts
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestSourceFrequencyAPI(t *testing.T) {
	rig, _, ts := newTestServer(t)

	code, out := doJSON(t, http.MethodPost, ts.URL+"/api/radio/source", `{"hz": 1500}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	want := radio.PhaseIncrement(1500, radio.DefaultClockHz)
	assert.Equal(t, float64(want), out["pinc"])
	assert.Equal(t, want, rig.mem.Peek(radio.RadioBase+radio.SourcePincOffset))

	code, out = doJSON(t, http.MethodGet, ts.URL+"/api/radio/source", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1500.0, out["hz"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/radio/source", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/radio/source", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/radio/source", `{"hz": 1}`)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestTunerFrequencyAPI(t *testing.T) {
	rig, _, ts := newTestServer(t)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/radio/tuner", `{"hz": -250}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, radio.PhaseIncrement(-250, radio.DefaultClockHz), rig.mem.Peek(radio.RadioBase+radio.TunerPincOffset))

	_, out := doJSON(t, http.MethodGet, ts.URL+"/api/radio/tuner", "")
	assert.Equal(t, -250.0, out["hz"])
}

func TestMuteAPI(t *testing.T) {
	rig, _, ts := newTestServer(t)

	_, out := doJSON(t, http.MethodGet, ts.URL+"/api/radio/mute", "")
	assert.Equal(t, true, out["muted"])

	// empty body toggles
	code, out := doJSON(t, http.MethodPost, ts.URL+"/api/radio/mute", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["muted"])
	assert.Equal(t, uint32(0), rig.mem.Peek(radio.RadioBase+radio.ControlOffset))

	code, out = doJSON(t, http.MethodPost, ts.URL+"/api/radio/mute", `{"muted": true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["muted"])
	assert.Equal(t, uint32(1), rig.mem.Peek(radio.RadioBase+radio.ControlOffset))
}

func TestMuteAPIReportsRegisterFailure(t *testing.T) {
	rig, _, ts := newTestServer(t)
	rig.mem.OnRead(radio.RadioBase+radio.ControlOffset, func(uint32) (uint32, error) {
		return 0, errors.New("bus fault")
	})

	code, out := doJSON(t, http.MethodPost, ts.URL+"/api/radio/mute", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "bus fault")
}

func TestStreamAPI(t *testing.T) {
	_, _, ts := newTestServer(t)

	code, out := doJSON(t, http.MethodPost, ts.URL+"/api/stream/start", `{"endpoint": "127.0.0.1:9"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "127.0.0.1:9", out["endpoint"])
	assert.NotEmpty(t, out["session_id"])

	code, out = doJSON(t, http.MethodPost, ts.URL+"/api/stream/start", `{}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, out["success"])

	_, out = doJSON(t, http.MethodGet, ts.URL+"/api/stream/state", "")
	assert.Equal(t, "running", out["state"])
	assert.Equal(t, "127.0.0.1:9", out["endpoint"])

	code, out = doJSON(t, http.MethodPost, ts.URL+"/api/stream/stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", out["state"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/stream/stop", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/stream/start", `{"endpoint": "missing-port"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, http.MethodGet, ts.URL+"/api/stream/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestBenchmarkAPI(t *testing.T) {
	_, _, ts := newTestServer(t)

	code, out := doJSON(t, http.MethodPost, ts.URL+"/api/radio/benchmark", `{"reads": 32}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 32.0, out["reads"])
	assert.Equal(t, 128.0, out["bytes"])

	code, out = doJSON(t, http.MethodPost, ts.URL+"/api/radio/benchmark", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(radio.DefaultBenchmarkReads), out["reads"])

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/radio/benchmark", `{"reads": 0}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndMetrics(t *testing.T) {
	rig, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, rig.st.StartStreaming(""))
	require.Eventually(t, func() bool { return rig.st.stream.Stats().Polls > 0 }, 5*time.Second, time.Millisecond)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "radiostream_stream_running 1")
	assert.Contains(t, string(body), "radiostream_stream_packets_sent_total")

	// unmapped peripherals fail readiness
	require.NoError(t, rig.st.Close())
	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketStatusAndControl(t *testing.T) {
	rig, srv, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		Type   string `json:"type"`
		Status Status `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "idle", msg.Status.Stream.State)
	require.Eventually(t, func() bool { return srv.clients.Count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.WriteJSON(map[string]interface{}{"type": "stream_control", "enabled": true}))
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "running", msg.Status.Stream.State)
	assert.Equal(t, "running", rig.st.stream.State().String())

	// a second start is refused and reported to this client only
	require.NoError(t, c.WriteJSON(map[string]interface{}{"type": "stream_control", "enabled": true}))
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "already running")

	require.NoError(t, c.WriteJSON(map[string]interface{}{"type": "stream_control", "enabled": false}))
	require.NoError(t, c.ReadJSON(&msg))
	assert.Equal(t, "idle", msg.Status.Stream.State)
}
