package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	TypeNewOrder           MessageType = "newOrder"
	TypeSessionOrderUpdate MessageType = "sessionOrderUpdate"
	TypeHeartbeat          MessageType = "heartbeat"
	TypeAuthResponse       MessageType = "auth_response"
)

// ClientType represents the type of connected client
type ClientType string

const (
	ClientAdmin    ClientType = "admin"
	ClientKitchen  ClientType = "kitchen"
	ClientCustomer ClientType = "customer"
)

func (t ClientType) valid() bool {
	return t == ClientAdmin || t == ClientKitchen || t == ClientCustomer
}

const (
	heartbeatInterval = 30 * time.Second
	pingInterval      = 54 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 10 * time.Second
	sendBuffer        = 256
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID          string
	Type        ClientType
	Connection  *websocket.Conn
	Send        chan []byte
	Server      *Server
	ConnectedAt time.Time
	RemoteAddr  string
	closeOnce   sync.Once
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// SessionCounter reports how many ordering sessions are open
type SessionCounter interface {
	ActiveSessions() int
}

// Server is the live event hub. It also owns the HTTP listener that serves
// the REST API.
type Server struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	running    atomic.Bool
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	addr       string
	enableMDNS bool
	mux        *http.ServeMux
	httpServer *http.Server
	mdnsServer *zeroconf.Server
	sessions   SessionCounter
}

// NewServer creates a new WebSocket server listening on addr (":8080")
func NewServer(addr string, enableMDNS bool) *Server {
	s := &Server{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		addr:       addr,
		enableMDNS: enableMDNS,
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from local network
				return true
			},
		},
	}
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// SetSessionCounter adds the open session count to /health
func (s *Server) SetSessionCounter(c SessionCounter) {
	s.sessions = c
}

// SetRESTHandlers registers the REST API on the server's mux
func (s *Server) SetRESTHandlers(h *RESTHandlers) {
	h.Register(s.mux)
	log.Println("WebSocket server: REST API endpoints registered")
}

// Handler returns the HTTP handler serving the hub and the REST API
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// Run starts the hub loop without listening, for embedding the handler
func (s *Server) Run() {
	if s.running.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Start starts the hub and serves HTTP until Shutdown
func (s *Server) Start() error {
	s.Run()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	if s.enableMDNS {
		go s.startMDNS(ln.Addr().(*net.TCPAddr).Port)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	log.Printf("WebSocket server starting on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startMDNS announces the order server via mDNS/Zeroconf
func (s *Server) startMDNS(port int) {
	server, err := zeroconf.Register(
		"OrderDesk",
		"_orderdesk._tcp",
		"local.",
		port,
		[]string{"version=1.0", "ws=/ws", "api=/api"},
		nil,
	)
	if err != nil {
		log.Printf("mDNS: Failed to register service: %v", err)
		return
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	log.Printf("mDNS: OrderDesk announced on _orderdesk._tcp.local port %s", strconv.Itoa(port))
}

// Shutdown stops the mDNS announcement, disconnects every client and stops
// the HTTP listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Println("mDNS: Service announcement stopped")
	}
	for id, client := range s.clients {
		client.closeSend()
		client.Connection.Close()
		delete(s.clients, id)
	}
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// run handles the main server loop
func (s *Server) run() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			s.mu.Unlock()
			log.Printf("Client registered: %s (type: %s)", client.ID, client.Type)
			s.sendAuthResponse(client)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client.ID]; ok {
				delete(s.clients, client.ID)
				client.closeSend()
				log.Printf("Client unregistered: %s", client.ID)
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.sendHeartbeat()

		case <-s.stop:
			return
		}
	}
}

// handleWebSocket upgrades the connection. The client kind comes from ?type=
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientType := ClientType(r.URL.Query().Get("type"))
	if clientType == "" {
		clientType = ClientAdmin
	}
	if !clientType.valid() {
		http.Error(w, "Invalid client type", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:          generateClientID(),
		Type:        clientType,
		Connection:  conn,
		Send:        make(chan []byte, sendBuffer),
		Server:      s,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}

	select {
	case s.register <- client:
	case <-s.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// handleHealth handles health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"clients":     s.ClientCounts(),
		"connections": s.GetConnectedClients(),
		"time":        time.Now(),
	}
	if s.sessions != nil {
		response["active_sessions"] = s.sessions.ActiveSessions()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// readPump handles reading messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Server.unregister <- c:
		case <-c.Server.stop:
		}
		c.Connection.Close()
	}()

	c.Connection.SetReadDeadline(time.Now().Add(readTimeout))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, messageBytes, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("Error parsing message: %v", err)
			continue
		}
		c.handleMessage(&message)
	}
}

// writePump handles writing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages. Orders arrive over REST, so
// clients only exchange heartbeats.
func (c *Client) handleMessage(message *Message) {
	switch message.Type {
	case TypeHeartbeat:
		c.sendMessage(Message{
			Type:      TypeHeartbeat,
			Timestamp: time.Now(),
			Data:      json.RawMessage(`{"status":"alive"}`),
		})
	default:
		log.Printf("Unknown message type %s from client %s", message.Type, c.ID)
	}
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// Send is closed once the client leaves the hub
	c.Server.mu.RLock()
	defer c.Server.mu.RUnlock()
	if c.Server.clients[c.ID] != c {
		return fmt.Errorf("client %s is not connected", c.ID)
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}

// Publish delivers an order event. newOrder goes to admin and kitchen
// screens, everything else to every client. Slow clients miss the event.
func (s *Server) Publish(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling %s payload: %v", event, err)
		return
	}

	message := &Message{
		Type:      MessageType(event),
		Timestamp: time.Now(),
		Data:      data,
	}

	switch message.Type {
	case TypeNewOrder:
		s.broadcastTo(message, ClientAdmin, ClientKitchen)
	default:
		s.broadcastTo(message)
	}
}

// broadcastTo sends message to clients of the given types, or to all clients
// when no type is given
func (s *Server) broadcastTo(message *Message, types ...ClientType) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		if len(types) > 0 && !containsType(types, client.Type) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("Failed to send to %s client %s", client.Type, client.ID)
		}
	}
}

func containsType(types []ClientType, t ClientType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// sendHeartbeat sends heartbeat to all clients
func (s *Server) sendHeartbeat() {
	s.broadcastTo(&Message{
		Type:      TypeHeartbeat,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{"ping":"pong"}`),
	})
}

// sendAuthResponse greets a freshly registered client with its id
func (s *Server) sendAuthResponse(client *Client) {
	data, _ := json.Marshal(map[string]interface{}{
		"success":   true,
		"message":   "Connected successfully",
		"client_id": client.ID,
		"type":      client.Type,
	})

	client.sendMessage(Message{
		Type:      TypeAuthResponse,
		ClientID:  client.ID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// ClientCounts returns the number of connected clients per type
func (s *Server) ClientCounts() map[ClientType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[ClientType]int{ClientAdmin: 0, ClientKitchen: 0, ClientCustomer: 0}
	for _, client := range s.clients {
		counts[client.Type]++
	}
	return counts
}

// GetConnectedClients returns list of connected clients
func (s *Server) GetConnectedClients() []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]map[string]interface{}, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, map[string]interface{}{
			"id":           client.ID,
			"type":         string(client.Type),
			"connected_at": client.ConnectedAt.Format(time.RFC3339),
			"remote_addr":  client.RemoteAddr,
		})
	}
	return clients
}

var clientSeq atomic.Uint64

func generateClientID() string {
	return fmt.Sprintf("%d-%d", time.Now().Unix(), clientSeq.Add(1))
}
