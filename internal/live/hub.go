package live

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/geckom/smartcharge-predictor/internal/events"
)

// Frame is the wire format for messages pushed over the WebSocket.
type Frame struct {
	Type     string      `json:"type"` // forecast, charge, training, device
	DeviceID string      `json:"device_id,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// Hub pushes live forecast and lifecycle events to WebSocket clients.
// Clients may pass ?device_id= to receive a single device's stream.
type Hub struct {
	bus      *events.Bus
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

type wsConn struct {
	conn     *websocket.Conn
	deviceID string // empty means all devices
	send     chan Frame
	done     chan struct{}
}

// NewHub creates a hub wired to the event bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsConn]struct{}),
	}
}

// Start subscribes the hub to the event bus. Call once before serving.
func (h *Hub) Start() {
	h.bus.Subscribe(func(e events.Event) {
		frame, ok := frameFor(e)
		if !ok {
			return
		}
		h.broadcast(frame)
	})
}

// frameFor maps a bus event onto a client-facing frame.
func frameFor(e events.Event) (Frame, bool) {
	switch e.Type {
	case events.ForecastUpdated:
		return Frame{Type: "forecast", DeviceID: e.DeviceID, Payload: e.Payload}, true
	case events.ChargeStarted, events.ChargeComplete:
		return Frame{Type: "charge", DeviceID: e.DeviceID, Message: e.Message, Payload: e.Payload}, true
	case events.TrainingComplete, events.TrainingFailed:
		return Frame{Type: "training", DeviceID: e.DeviceID, Message: e.Message}, true
	case events.DeviceRegistered, events.DeviceOrphaned:
		return Frame{Type: "device", DeviceID: e.DeviceID, Message: e.Message}, true
	default:
		return Frame{}, false
	}
}

func (h *Hub) broadcast(frame Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for wc := range h.conns {
		if wc.deviceID != "" && frame.DeviceID != "" && wc.deviceID != frame.DeviceID {
			continue
		}
		select {
		case wc.send <- frame:
		default:
			// Slow consumer, drop the frame rather than block the bus.
		}
	}
}

// HandleConnection is the HTTP handler that upgrades to WebSocket.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	wc := &wsConn{
		conn:     conn,
		deviceID: r.URL.Query().Get("device_id"),
		send:     make(chan Frame, 64),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[wc] = struct{}{}
	h.mu.Unlock()

	log.Printf("[WS] Client connected (device_id=%q)", wc.deviceID)

	go h.writeLoop(wc)
	h.readLoop(wc)

	h.mu.Lock()
	delete(h.conns, wc)
	h.mu.Unlock()
	close(wc.done)

	log.Printf("[WS] Client disconnected")
}

// readLoop consumes client messages to detect disconnects. Clients send
// nothing meaningful; pongs reset the read deadline.
func (h *Hub) readLoop(wc *wsConn) {
	defer wc.conn.Close()

	wc.conn.SetReadLimit(4 * 1024)
	wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
		wc.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

// writeLoop pushes frames and periodic pings to the client.
func (h *Hub) writeLoop(wc *wsConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-wc.done:
			return
		case frame := <-wc.send:
			data, err := json.Marshal(frame)
			if err != nil {
				log.Printf("[WS] Failed to encode frame: %v", err)
				continue
			}
			wc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := wc.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(10*time.Second),
			); err != nil {
				return
			}
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll terminates all active WebSocket connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for wc := range h.conns {
		wc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		wc.conn.Close()
		delete(h.conns, wc)
	}
}
