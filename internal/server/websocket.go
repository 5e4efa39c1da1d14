// ABOUTME: Control websocket handling
// ABOUTME: Handshake, per-client writer and message dispatch
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/metrics"
	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 32
)

// client is a connected websocket peer
type client struct {
	id   string
	name string
	conn *websocket.Conn

	sendChan chan protocol.Message
	mu       sync.Mutex
	closed   bool
}

// send queues a message without blocking
func (c *client) send(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client %s closed", c.name)
	}

	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// close stops the writer once
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}

// handleWebSocket upgrades the connection and runs the client session
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	hello, err := readHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		writeDirect(conn, protocol.TypeServerError, protocol.ServerError{
			Error:   "invalid_hello",
			Message: err.Error(),
		})
		return
	}

	log.Printf("Client hello: %s (ID: %s)", hello.Name, hello.ClientID)

	c := &client{
		id:       hello.ClientID,
		name:     hello.Name,
		conn:     conn,
		sendChan: make(chan protocol.Message, sendBuffer),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[c.id]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", c.id, existing.name)
		writeDirect(conn, protocol.TypeServerError, protocol.ServerError{
			Error:   "duplicate_client_id",
			Message: "Client ID already connected",
		})
		return
	}
	s.clients[c.id] = c
	s.clientsMu.Unlock()
	metrics.ControlClients.Inc()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		c.close()
		metrics.ControlClients.Dec()
		log.Printf("Client disconnected: %s", c.name)
	}()

	status := s.lab.Status()
	if err := c.send(protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
		Status:   &status,
	}); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(c, data)
	}
}

// readHello reads and validates the client/hello message
func readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("reading hello: %w", err)
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("unmarshaling message: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}
	if err := decodePayload(msg.Payload, &hello); err != nil {
		return hello, fmt.Errorf("decoding hello: %w", err)
	}
	if hello.ClientID == "" {
		return hello, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		hello.Name = hello.ClientID
	}
	return hello, nil
}

// clientWriter sends queued messages and keepalive pings
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling message: %v", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing message: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage dispatches messages from clients
func (s *Server) handleClientMessage(c *client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeParamsUpdate:
		s.handleParamsUpdate(c, msg.Payload)
	case protocol.TypeSamplesRequest:
		s.handleSamplesRequest(c, msg.Payload)
	default:
		log.Printf("Unknown message type from %s: %s", c.name, msg.Type)
	}
}

// handleParamsUpdate applies a parameter update and replies with the result
func (s *Server) handleParamsUpdate(c *client, payload interface{}) {
	var u samplehold.Update
	if err := decodePayload(payload, &u); err != nil {
		metrics.ParamUpdatesTotal.WithLabelValues("ws", "invalid").Inc()
		c.send(protocol.TypeParamsResult, protocol.ParamsResult{
			Applied: []string{},
			Error:   "invalid parameter update: " + err.Error(),
		})
		return
	}

	result, _ := s.apply(u, "ws")
	if s.config.Debug {
		log.Printf("[DEBUG] Params from %s: applied=%v rejected=%v", c.name, result.Applied, result.Rejected)
	}

	if err := c.send(protocol.TypeParamsResult, result); err != nil {
		log.Printf("Error sending params result: %v", err)
	}
}

// handleSamplesRequest generates samples for the client
func (s *Server) handleSamplesRequest(c *client, payload interface{}) {
	var req protocol.SamplesRequest
	if err := decodePayload(payload, &req); err != nil {
		metrics.SampleRequestsTotal.WithLabelValues("invalid").Inc()
		c.send(protocol.TypeSamplesResponse, protocol.SamplesResponse{
			Samples: []float64{},
			Error:   "invalid samples request: " + err.Error(),
		})
		return
	}

	resp := generate(req, s.lab.Status())
	if err := c.send(protocol.TypeSamplesResponse, resp); err != nil {
		log.Printf("Error sending samples: %v", err)
	}
}

// decodePayload converts a generic payload into a typed struct
func decodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeDirect writes a message before the writer goroutine exists
func writeDirect(conn *websocket.Conn, msgType string, payload interface{}) {
	data, err := json.Marshal(protocol.Message{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteMessage(websocket.TextMessage, data)
}
