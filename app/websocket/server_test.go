package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHub(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(":0", false)
	s.Run()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown(context.Background())
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, clientType string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?type=" + clientType
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", clientType, err)
	}
	t.Cleanup(func() { conn.Close() })

	if msg := readMessage(t, conn); msg.Type != TypeAuthResponse {
		t.Fatalf("first message = %s, want auth_response", msg.Type)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestPublish_RoutesByClientType(t *testing.T) {
	s, ts := newHub(t)
	kitchen := dial(t, ts, "kitchen")
	customer := dial(t, ts, "customer")

	s.Publish("newOrder", map[string]string{"order_id": "ORD-20260210-0001"})
	s.Publish("sessionOrderUpdate", map[string]string{"session_id": "SES-1"})

	got := readMessage(t, kitchen)
	if got.Type != TypeNewOrder {
		t.Fatalf("kitchen got %s, want newOrder", got.Type)
	}
	var payload map[string]string
	if err := json.Unmarshal(got.Data, &payload); err != nil || payload["order_id"] != "ORD-20260210-0001" {
		t.Errorf("payload = %s (%v)", got.Data, err)
	}
	if got := readMessage(t, kitchen); got.Type != TypeSessionOrderUpdate {
		t.Errorf("kitchen second message = %s", got.Type)
	}

	// customers never see newOrder, so their next message is the session update
	if got := readMessage(t, customer); got.Type != TypeSessionOrderUpdate {
		t.Errorf("customer got %s, want sessionOrderUpdate", got.Type)
	}
}

func TestHeartbeatReply(t *testing.T) {
	_, ts := newHub(t)
	conn := dial(t, ts, "admin")

	if err := conn.WriteJSON(Message{Type: TypeHeartbeat, Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if got := readMessage(t, conn); got.Type != TypeHeartbeat {
		t.Errorf("reply = %s", got.Type)
	}
}

func TestHandleWebSocket_RejectsUnknownType(t *testing.T) {
	_, ts := newHub(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?type=waiter"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %v", resp)
	}
}

type fixedSessions int

func (n fixedSessions) ActiveSessions() int { return int(n) }

func TestHealthAndClientCounts(t *testing.T) {
	s, ts := newHub(t)
	s.SetSessionCounter(fixedSessions(4))
	dial(t, ts, "kitchen")
	dial(t, ts, "kitchen")
	dial(t, ts, "")

	counts := s.ClientCounts()
	if counts[ClientKitchen] != 2 || counts[ClientAdmin] != 1 || counts[ClientCustomer] != 0 {
		t.Errorf("counts = %v", counts)
	}
	if n := len(s.GetConnectedClients()); n != 3 {
		t.Errorf("connected clients = %d", n)
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status      string         `json:"status"`
		Clients     map[string]int `json:"clients"`
		Connections []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"connections"`
		ActiveSessions int `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Clients["kitchen"] != 2 {
		t.Errorf("health = %+v", body)
	}
	if len(body.Connections) != 3 || body.Connections[0].ID == "" {
		t.Errorf("connections = %+v", body.Connections)
	}
	if body.ActiveSessions != 4 {
		t.Errorf("active_sessions = %d", body.ActiveSessions)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	s, ts := newHub(t)
	conn := dial(t, ts, "customer")
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.ClientCounts()[ClientCustomer] != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
