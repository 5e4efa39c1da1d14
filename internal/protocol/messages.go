// ABOUTME: Lab control protocol message type definitions
// ABOUTME: Defines the JSON messages exchanged over the control websocket
package protocol

import "github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"

// Version is the control protocol version
const Version = 1

// Message types
const (
	TypeClientHello     = "client/hello"
	TypeServerHello     = "server/hello"
	TypeServerError     = "server/error"
	TypeParamsUpdate    = "params/update"
	TypeParamsResult    = "params/result"
	TypeSamplesRequest  = "samples/request"
	TypeSamplesResponse = "samples/response"
	TypeEngineStatus    = "engine/status"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string     `json:"server_id"`
	Name     string     `json:"name"`
	Version  int        `json:"version"`
	Status   *LabStatus `json:"status,omitempty"`
}

// ServerError reports a protocol failure before the connection closes
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParamsResult reports how a params/update was handled. Rejected maps a
// field name to the reason it was ignored.
type ParamsResult struct {
	Applied  []string          `json:"applied"`
	Rejected map[string]string `json:"rejected,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// SamplesRequest asks for a generated sample sequence. Absent fields fall
// back to the lab's current visualization.
type SamplesRequest struct {
	Rate      *float64 `json:"rate,omitempty"`
	Frequency *float64 `json:"freq,omitempty"`
	Count     *int     `json:"count,omitempty"`
}

// SamplesResponse carries a generated sequence
type SamplesResponse struct {
	Rate      float64   `json:"rate"`
	Frequency float64   `json:"freq"`
	Count     int       `json:"count"`
	Alias     float64   `json:"alias"`
	Samples   []float64 `json:"samples"`
	Error     string    `json:"error,omitempty"`
}

// LabStatus describes the lab's visualization and audio state
type LabStatus struct {
	Rate         float64           `json:"rate"`
	Frequency    float64           `json:"freq"`
	Count        int               `json:"count"`
	Gain         float64           `json:"gain"`
	Alias        float64           `json:"alias"`
	Aliased      bool              `json:"aliased"`
	AudioRunning bool              `json:"audio_running"`
	Backend      string            `json:"backend"`
	SampleRate   int               `json:"sample_rate"`
	Info         string            `json:"info,omitempty"`
	Engine       *samplehold.Stats `json:"engine,omitempty"`
}
