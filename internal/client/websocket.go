// ABOUTME: WebSocket client for the lab control protocol
// ABOUTME: Handles connection, handshake and message routing
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultPath is the control websocket path
const DefaultPath = "/ws"

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string
	ClientID   string
	Name       string
}

// Client represents a control websocket client
type Client struct {
	config  Config
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	hello protocol.ServerHello

	// Message channels
	Status  chan protocol.LabStatus
	Samples chan protocol.SamplesResponse
	Results chan protocol.ParamsResult

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client. An empty ClientID gets a fresh uuid.
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Name == "" {
		config.Name = "lab-remote"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		Status:  make(chan protocol.LabStatus, 10),
		Samples: make(chan protocol.SamplesResponse, 10),
		Results: make(chan protocol.ParamsResult, 10),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the connection and performs the handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  protocol.Version,
	}

	if err := c.send(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch msg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serr protocol.ServerError
		json.Unmarshal(msg.Payload, &serr)
		return fmt.Errorf("server rejected hello: %s (%s)", serr.Message, serr.Error)
	default:
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	var serverHello protocol.ServerHello
	if err := json.Unmarshal(msg.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.mu.Lock()
	c.hello = serverHello
	c.mu.Unlock()

	log.Printf("Handshake complete with %s (ID: %s)", serverHello.Name, serverHello.ServerID)
	return nil
}

// Hello returns the server/hello received during the handshake
func (c *Client) Hello() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

// send writes one JSON message
func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.IsConnected() {
				log.Printf("Read error: %v", err)
			}
			return
		}

		c.handleJSONMessage(data)
	}
}

// handleJSONMessage routes messages to their channels
func (c *Client) handleJSONMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeEngineStatus:
		var status protocol.LabStatus
		if err := json.Unmarshal(msg.Payload, &status); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Status <- status:
		case <-c.ctx.Done():
		}

	case protocol.TypeSamplesResponse:
		var resp protocol.SamplesResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Samples <- resp:
		case <-c.ctx.Done():
		}

	case protocol.TypeParamsResult:
		var result protocol.ParamsResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Results <- result:
		case <-c.ctx.Done():
		}

	case protocol.TypeServerError:
		var serr protocol.ServerError
		json.Unmarshal(msg.Payload, &serr)
		log.Printf("Server error: %s (%s)", serr.Message, serr.Error)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// SendParams sends a params/update message
func (c *Client) SendParams(u samplehold.Update) error {
	return c.send(protocol.TypeParamsUpdate, u)
}

// RequestSamples sends a samples/request message
func (c *Client) RequestSamples(req protocol.SamplesRequest) error {
	return c.send(protocol.TypeSamplesRequest, req)
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
