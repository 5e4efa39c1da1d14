// ABOUTME: Control server for the aliasing lab
// ABOUTME: Serves the HTTP API, the control websocket and mDNS advertisement
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/discovery"
	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultStatusInterval is how often engine/status is pushed
const DefaultStatusInterval = time.Second

// Lab is the part of the lab application the server exposes
type Lab interface {
	Status() protocol.LabStatus
	Apply(u samplehold.Update, source string) (samplehold.FieldErrors, error)
}

// Config holds server configuration
type Config struct {
	Port           int
	Name           string
	EnableMDNS     bool
	Debug          bool
	StatusInterval time.Duration
}

// Server is the lab control server
type Server struct {
	config   Config
	serverID string
	lab      Lab

	upgrader websocket.Upgrader
	router   chi.Router

	httpServer *http.Server

	// Connected websocket clients by client ID
	clients   map[string]*client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a server for the given lab
func New(config Config, lab Lab) *Server {
	if config.StatusInterval <= 0 {
		config.StatusInterval = DefaultStatusInterval
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		lab:      lab,
		upgrader: websocket.Upgrader{
			// The lab is a local tool; browsers on other origins may drive it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		stopChan: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

// ID returns the server's unique identifier
func (s *Server) ID() string {
	return s.serverID
}

// Handler returns the HTTP handler for all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve runs the server on an existing listener until Stop is called
func (s *Server) Serve(listener net.Listener) error {
	log.Printf("Control server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		port := s.config.Port
		if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.statusLoop()
	}()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Control server listening on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Control server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	s.closeClients()

	s.wg.Wait()
	log.Printf("Control server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// statusLoop pushes lab status to every websocket client
func (s *Server) statusLoop() {
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

// broadcastStatus sends one engine/status message to each client
func (s *Server) broadcastStatus() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	if len(s.clients) == 0 {
		return
	}

	status := s.lab.Status()
	for _, c := range s.clients {
		if err := c.send(protocol.TypeEngineStatus, status); err != nil && s.config.Debug {
			log.Printf("[DEBUG] Skipping status for %s: %v", c.name, err)
		}
	}
}

// closeClients closes all websocket connections so their read loops exit
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		c.conn.Close()
	}
}
