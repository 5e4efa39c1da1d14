// ABOUTME: Tests for the control server
// ABOUTME: Exercises HTTP routes and the websocket protocol against a fake lab
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/gorilla/websocket"
)

type fakeLab struct {
	mu       sync.Mutex
	status   protocol.LabStatus
	updates  []samplehold.Update
	sources  []string
	applyErr error
}

func newFakeLab() *fakeLab {
	return &fakeLab{status: protocol.LabStatus{Rate: 8000, Frequency: 440, Count: 100, Gain: 0.2}}
}

func (f *fakeLab) Status() protocol.LabStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeLab) Apply(u samplehold.Update, source string) (samplehold.FieldErrors, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	f.sources = append(f.sources, source)
	if u.Frequency != nil && u.Validate()[samplehold.FieldFrequency] == nil {
		f.status.Frequency = *u.Frequency
	}
	return u.Validate(), f.applyErr
}

func newTestServer(t *testing.T, lab Lab) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{Name: "Test Lab"}, lab)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestRequestIDPreserved(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected request id abc-123, got %q", got)
	}
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	resp, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var status protocol.LabStatus
	decodeBody(t, resp, &status)
	if status.Rate != 8000 || status.Frequency != 440 || status.Count != 100 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestSamples(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
		wantRate  float64
	}{
		{"explicit", "?rate=1000&freq=250&count=4", http.StatusOK, 4, 1000},
		{"defaults from lab", "", http.StatusOK, 100, 8000},
		{"zero count", "?count=0", http.StatusOK, 0, 8000},
		{"zero rate", "?rate=0", http.StatusBadRequest, 0, 0},
		{"negative rate", "?rate=-1", http.StatusBadRequest, 0, 0},
		{"nan rate", "?rate=NaN", http.StatusBadRequest, 0, 0},
		{"bad rate", "?rate=abc", http.StatusBadRequest, 0, 0},
		{"bad count", "?count=1.5", http.StatusBadRequest, 0, 0},
		{"negative count", "?count=-2", http.StatusBadRequest, 0, 0},
		{"count above max", "?count=1048577", http.StatusBadRequest, 0, 0},
		{"huge count", "?count=1125899906842624", http.StatusBadRequest, 0, 0},
		{"zero frequency", "?freq=0&count=3", http.StatusOK, 3, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/samples" + tt.query)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantCode {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, resp.StatusCode, body)
			}
			if tt.wantCode != http.StatusOK {
				resp.Body.Close()
				return
			}

			var body protocol.SamplesResponse
			decodeBody(t, resp, &body)
			if len(body.Samples) != tt.wantCount || body.Count != tt.wantCount {
				t.Errorf("expected %d samples, got %d (count %d)", tt.wantCount, len(body.Samples), body.Count)
			}
			if body.Rate != tt.wantRate {
				t.Errorf("expected rate %v, got %v", tt.wantRate, body.Rate)
			}
		})
	}
}

func TestSamplesValues(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	// fs = 4f gives 0, 1, 0, -1
	resp, err := http.Get(ts.URL + "/v1/samples?rate=4&freq=1&count=4")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var body protocol.SamplesResponse
	decodeBody(t, resp, &body)

	want := []float64{0, 1, 0, -1}
	for i := range want {
		if diff := body.Samples[i] - want[i]; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], body.Samples[i])
		}
	}
}

func TestParams(t *testing.T) {
	lab := newFakeLab()
	_, ts := newTestServer(t, lab)

	resp, err := http.Post(ts.URL+"/v1/params", "application/json",
		strings.NewReader(`{"virtualFs": -5, "freq": 1000}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var result protocol.ParamsResult
	decodeBody(t, resp, &result)

	if len(result.Applied) != 1 || result.Applied[0] != samplehold.FieldFrequency {
		t.Errorf("expected freq applied, got %v", result.Applied)
	}
	if _, ok := result.Rejected[samplehold.FieldVirtualRate]; !ok {
		t.Errorf("expected virtualFs rejected, got %v", result.Rejected)
	}
	if len(lab.sources) != 1 || lab.sources[0] != "http" {
		t.Errorf("expected one update from http, got %v", lab.sources)
	}
}

func TestParamsBadRequest(t *testing.T) {
	lab := newFakeLab()
	_, ts := newTestServer(t, lab)

	for _, body := range []string{`not json`, `{}`} {
		resp, err := http.Post(ts.URL+"/v1/params", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(lab.updates) != 0 {
		t.Errorf("expected no updates applied, got %d", len(lab.updates))
	}
}

func TestParamsQueueFull(t *testing.T) {
	lab := newFakeLab()
	lab.applyErr = samplehold.ErrQueueFull
	_, ts := newTestServer(t, lab)

	resp, err := http.Post(ts.URL+"/v1/params", "application/json", strings.NewReader(`{"gain": 0.5}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var result protocol.ParamsResult
	decodeBody(t, resp, &result)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected error in result")
	}
}

func TestParamsWrongMethod(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	resp, err := http.Get(ts.URL + "/v1/params")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/params", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow origin *, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "aliasing_lab_control_clients") {
		t.Error("expected control clients gauge in metrics output")
	}
}

// Websocket helpers

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMsg(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg rawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func handshake(t *testing.T, conn *websocket.Conn, id string) protocol.ServerHello {
	t.Helper()
	writeMsg(t, conn, protocol.TypeClientHello, protocol.ClientHello{
		ClientID: id,
		Name:     "test client",
		Version:  protocol.Version,
	})

	msg := readMsg(t, conn)
	if msg.Type != protocol.TypeServerHello {
		t.Fatalf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}
	var hello protocol.ServerHello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		t.Fatalf("bad server hello: %v", err)
	}
	return hello
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.clientsMu.RLock()
		count := len(s.clients)
		s.clientsMu.RUnlock()
		if count == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients", n)
}

func TestWebSocketHandshake(t *testing.T) {
	s, ts := newTestServer(t, newFakeLab())
	conn := dial(t, ts)

	hello := handshake(t, conn, "client-1")
	if hello.ServerID != s.ID() {
		t.Errorf("expected server id %s, got %s", s.ID(), hello.ServerID)
	}
	if hello.Name != "Test Lab" {
		t.Errorf("expected name 'Test Lab', got '%s'", hello.Name)
	}
	if hello.Version != protocol.Version {
		t.Errorf("expected version %d, got %d", protocol.Version, hello.Version)
	}
	if hello.Status == nil || hello.Status.Rate != 8000 {
		t.Errorf("expected initial status, got %+v", hello.Status)
	}
}

func TestWebSocketRejectsBadHello(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())

	tests := []struct {
		name    string
		msgType string
		payload interface{}
	}{
		{"wrong type", protocol.TypeParamsUpdate, map[string]float64{"freq": 1}},
		{"missing id", protocol.TypeClientHello, protocol.ClientHello{Name: "anon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, ts)
			writeMsg(t, conn, tt.msgType, tt.payload)

			msg := readMsg(t, conn)
			if msg.Type != protocol.TypeServerError {
				t.Errorf("expected %s, got %s", protocol.TypeServerError, msg.Type)
			}
		})
	}
}

func TestWebSocketDuplicateClient(t *testing.T) {
	s, ts := newTestServer(t, newFakeLab())

	first := dial(t, ts)
	handshake(t, first, "same-id")
	waitForClients(t, s, 1)

	second := dial(t, ts)
	writeMsg(t, second, protocol.TypeClientHello, protocol.ClientHello{ClientID: "same-id", Name: "dup"})

	msg := readMsg(t, second)
	if msg.Type != protocol.TypeServerError {
		t.Fatalf("expected %s, got %s", protocol.TypeServerError, msg.Type)
	}
	var serr protocol.ServerError
	json.Unmarshal(msg.Payload, &serr)
	if serr.Error != "duplicate_client_id" {
		t.Errorf("expected duplicate_client_id, got %s", serr.Error)
	}
}

func TestWebSocketParamsUpdate(t *testing.T) {
	lab := newFakeLab()
	_, ts := newTestServer(t, lab)
	conn := dial(t, ts)
	handshake(t, conn, "client-1")

	writeMsg(t, conn, protocol.TypeParamsUpdate, map[string]float64{"freq": 880, "virtualFs": 0})

	msg := readMsg(t, conn)
	if msg.Type != protocol.TypeParamsResult {
		t.Fatalf("expected %s, got %s", protocol.TypeParamsResult, msg.Type)
	}

	var result protocol.ParamsResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		t.Fatalf("bad result: %v", err)
	}
	if len(result.Applied) != 1 || result.Applied[0] != samplehold.FieldFrequency {
		t.Errorf("expected freq applied, got %v", result.Applied)
	}
	if _, ok := result.Rejected[samplehold.FieldVirtualRate]; !ok {
		t.Errorf("expected virtualFs rejected, got %v", result.Rejected)
	}
	if lab.Status().Frequency != 880 {
		t.Errorf("expected lab frequency 880, got %v", lab.Status().Frequency)
	}
}

func TestWebSocketSamplesRequest(t *testing.T) {
	_, ts := newTestServer(t, newFakeLab())
	conn := dial(t, ts)
	handshake(t, conn, "client-1")

	count := 3
	writeMsg(t, conn, protocol.TypeSamplesRequest, protocol.SamplesRequest{
		Rate:      samplehold.Float(1000),
		Frequency: samplehold.Float(1500),
		Count:     &count,
	})

	msg := readMsg(t, conn)
	if msg.Type != protocol.TypeSamplesResponse {
		t.Fatalf("expected %s, got %s", protocol.TypeSamplesResponse, msg.Type)
	}

	var resp protocol.SamplesResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(resp.Samples) != 3 {
		t.Errorf("expected 3 samples, got %d", len(resp.Samples))
	}
	if resp.Alias != 500 {
		t.Errorf("expected alias 500Hz, got %v", resp.Alias)
	}

	// Invalid requests get an error response, not a disconnect
	bad := -1
	writeMsg(t, conn, protocol.TypeSamplesRequest, protocol.SamplesRequest{Count: &bad})
	msg = readMsg(t, conn)

	var errResp protocol.SamplesResponse
	json.Unmarshal(msg.Payload, &errResp)
	if errResp.Error == "" {
		t.Error("expected error for negative count")
	}
}

func TestGenerateExplicitFields(t *testing.T) {
	status := protocol.LabStatus{Rate: 8000, Frequency: 440, Count: 100}
	three := 3
	huge := 1 << 50

	tests := []struct {
		name      string
		req       protocol.SamplesRequest
		wantErr   bool
		wantRate  float64
		wantFreq  float64
		wantCount int
	}{
		{"defaults from status", protocol.SamplesRequest{}, false, 8000, 440, 100},
		{"zero frequency", protocol.SamplesRequest{Frequency: samplehold.Float(0), Count: &three}, false, 8000, 0, 3},
		{"explicit zero rate", protocol.SamplesRequest{Rate: samplehold.Float(0)}, true, 0, 0, 0},
		{"count above max", protocol.SamplesRequest{Count: &huge}, true, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := generate(tt.req, status)
			if tt.wantErr {
				if resp.Error == "" {
					t.Fatal("expected an error response")
				}
				if len(resp.Samples) != 0 {
					t.Errorf("expected no samples, got %d", len(resp.Samples))
				}
				return
			}
			if resp.Error != "" {
				t.Fatalf("unexpected error: %s", resp.Error)
			}
			if resp.Rate != tt.wantRate || resp.Frequency != tt.wantFreq || len(resp.Samples) != tt.wantCount {
				t.Errorf("expected %v/%v/%d, got %v/%v/%d",
					tt.wantRate, tt.wantFreq, tt.wantCount, resp.Rate, resp.Frequency, len(resp.Samples))
			}
			for i, v := range resp.Samples {
				if tt.wantFreq == 0 && v != 0 {
					t.Errorf("sample %d: expected 0 for a 0Hz sine, got %v", i, v)
				}
			}
		})
	}
}

func TestWebSocketStatusPush(t *testing.T) {
	s, ts := newTestServer(t, newFakeLab())
	conn := dial(t, ts)
	handshake(t, conn, "client-1")
	waitForClients(t, s, 1)

	s.broadcastStatus()

	msg := readMsg(t, conn)
	if msg.Type != protocol.TypeEngineStatus {
		t.Fatalf("expected %s, got %s", protocol.TypeEngineStatus, msg.Type)
	}
	var status protocol.LabStatus
	if err := json.Unmarshal(msg.Payload, &status); err != nil {
		t.Fatalf("bad status: %v", err)
	}
	if status.Count != 100 {
		t.Errorf("expected count 100, got %d", status.Count)
	}
}

func TestServeAndStop(t *testing.T) {
	s := New(Config{Name: "Test Lab", StatusInterval: 10 * time.Millisecond}, newFakeLab())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	// Let the listener come up before stopping
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDecodePayload(t *testing.T) {
	var u samplehold.Update
	payload := map[string]interface{}{"virtualFs": 4410.0, "gain": 0.5}
	if err := decodePayload(payload, &u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.VirtualRate == nil || *u.VirtualRate != 4410 {
		t.Errorf("expected virtualFs 4410, got %v", u.VirtualRate)
	}
	if u.Frequency != nil {
		t.Errorf("expected no frequency, got %v", *u.Frequency)
	}
	if u.Gain == nil || *u.Gain != 0.5 {
		t.Errorf("expected gain 0.5, got %v", *u.Gain)
	}
}
