package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/coordinator"
	"github.com/nb-picture/backend/internal/events"
	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/session"
)

// WebSocket message types for the widget protocol
const (
	// Client -> Server messages
	MsgTypeImageLoad       = "image:load"
	MsgTypeImageError      = "image:error"
	MsgTypeImageReadyState = "image:readystatechange"
	MsgTypeResize          = "resize"
	MsgTypeAreaClick       = "area:click"
	MsgTypeAreaFocus       = "area:focus"
	MsgTypeAreaHover       = "area:hover"
	MsgTypePing            = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeApplySources = "applySources"
	MsgTypeEvent        = "event"
	MsgTypeSnapshot     = "snapshot"
	MsgTypeClosed       = "closed"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Image event payload
type ImageEventPayload struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ReadyState string `json:"readyState,omitempty"`
}

// Resize payload
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area interaction payload
type AreaEventPayload struct {
	AreaID string `json:"areaId"`
	Blur   bool   `json:"blur,omitempty"`
}

// Area interaction result
type AreaEventResult struct {
	AreaID  string `json:"areaId"`
	Changed bool   `json:"changed"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// wsClient is one connection bound to a widget
type wsClient struct {
	widgetID string
	send     chan WSMessage
	done     chan struct{}
	once     sync.Once
}

func newWSClient(widgetID string) *wsClient {
	return &wsClient{
		widgetID: widgetID,
		send:     make(chan WSMessage, wsSendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue queues a message without blocking the publisher
func (c *wsClient) enqueue(msg WSMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		klog.Warningf("[WebSocket %s] send buffer full, dropping %s", c.widgetID, msg.Type)
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks connected clients per widget. It is the source applier of
// remote-mode widgets: applySources requests are forwarded to every client of
// the widget and replayed to clients that connect later.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	pending map[string]models.Picture
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*wsClient]struct{}),
		pending: make(map[string]models.Picture),
	}
}

var _ coordinator.SourceApplier = (*Hub)(nil)

// ApplySources forwards a resolved picture to the widget's clients.
func (h *Hub) ApplySources(pictureID string, p models.Picture) {
	h.mu.Lock()
	h.pending[pictureID] = p
	h.mu.Unlock()

	h.broadcast(pictureID, newMessage(MsgTypeApplySources, pictureID, p))
}

// Forget drops the widget's pending request and disconnects its clients.
func (h *Hub) Forget(pictureID string) {
	h.mu.Lock()
	delete(h.pending, pictureID)
	clients := h.clients[pictureID]
	delete(h.clients, pictureID)
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Clients returns the number of clients connected to a widget.
func (h *Hub) Clients(pictureID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pictureID])
}

func (h *Hub) register(c *wsClient) (models.Picture, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.widgetID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.widgetID] = set
	}
	set[c] = struct{}{}

	p, ok := h.pending[c.widgetID]
	return p, ok
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.clients[c.widgetID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.widgetID)
		}
	}
}

func (h *Hub) broadcast(widgetID string, msg WSMessage) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients[widgetID]))
	for c := range h.clients[widgetID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}

// WebSocketHandler serves the per-widget event channel
type WebSocketHandler struct {
	hub      *Hub
	sessions *session.Manager
	upgrader websocket.Upgrader
	maxSize  int64
}

// NewWebSocketHandler creates a new WebSocket handler. maxMessageSize limits
// client messages in bytes; zero keeps the default of 64KB.
func NewWebSocketHandler(hub *Hub, sessions *session.Manager, maxMessageSize int64) *WebSocketHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 64 * 1024
	}
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxSize: maxMessageSize,
	}
}

// HandleWebSocket upgrades the connection and relays events of one widget
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	w, ok := wsh.sessions.Get(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxSize)

	client := newWSClient(id)
	pending, hasPending := wsh.hub.register(client)
	defer wsh.hub.unregister(client)
	defer client.close()

	unsubscribe := w.Coordinator.Bus().Subscribe(func(e events.Event) {
		client.enqueue(newMessage(MsgTypeEvent, id, e))
		wsh.enqueueSnapshot(client)
	})
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		wsh.writePump(ws, client)
	}()

	klog.V(1).Infof("[WebSocket %s] client connected", id)
	client.enqueue(newMessage(MsgTypeConnected, id, nil))
	wsh.enqueueSnapshot(client)
	if hasPending {
		client.enqueue(newMessage(MsgTypeApplySources, id, pending))
	}

	wsh.readLoop(ws, client, w)

	client.close()
	<-writerDone
	klog.V(1).Infof("[WebSocket %s] client disconnected", id)
	return nil
}

// readLoop dispatches client messages until the connection fails
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, client *wsClient, w *session.Widget) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[WebSocket %s] panic in read loop: %v", client.widgetID, r)
		}
	}()

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				klog.V(1).Infof("[WebSocket %s] connection error: %v", client.widgetID, err)
			}
			return
		}
		wsh.sessions.TouchWidget(client.widgetID)
		wsh.dispatch(client, w, msg)
	}
}

func (wsh *WebSocketHandler) dispatch(client *wsClient, w *session.Widget, msg WSMessage) {
	id := client.widgetID

	switch msg.Type {
	case MsgTypePing:
		client.enqueue(newMessage(MsgTypePong, id, nil))

	case MsgTypeImageLoad, MsgTypeImageError, MsgTypeImageReadyState:
		var payload ImageEventPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				wsh.sendError(client, "Invalid image payload: "+err.Error(), "INVALID_PAYLOAD")
				return
			}
		}
		event := msg.Type[len("image:"):]
		wsh.sessions.ImageEvent(id, event, payload.Width, payload.Height, payload.ReadyState)

	case MsgTypeResize:
		var payload ResizePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			wsh.sendError(client, "Invalid resize payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		wsh.sessions.Resize(id, payload.Width, payload.Height)

	case MsgTypeAreaClick, MsgTypeAreaFocus, MsgTypeAreaHover:
		var payload AreaEventPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			wsh.sendError(client, "Invalid area payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		action := msg.Type[len("area:"):]
		changed, err := applyAreaEvent(w.Coordinator, action, payload.AreaID, payload.Blur)
		if err != nil {
			wsh.sendError(client, err.Error(), "INVALID_TYPE")
			return
		}
		client.enqueue(newMessage(areaResultType(action), id, AreaEventResult{
			AreaID:  payload.AreaID,
			Changed: changed,
		}))

	default:
		wsh.sendError(client, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

// areaResultType names the acknowledgement of an area interaction
func areaResultType(action string) string {
	return fmt.Sprintf("area:%s:result", action)
}

// writePump is the only writer of ws
func (wsh *WebSocketHandler) writePump(ws *websocket.Conn, client *wsClient) {
	for {
		select {
		case msg := <-client.send:
			if !wsh.write(ws, client, msg) {
				return
			}
		case <-client.done:
			// flush what is queued, then say goodbye
			for {
				select {
				case msg := <-client.send:
					if !wsh.write(ws, client, msg) {
						return
					}
				default:
					wsh.write(ws, client, newMessage(MsgTypeClosed, client.widgetID, nil))
					ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(wsWriteTimeout))
					ws.Close()
					return
				}
			}
		}
	}
}

func (wsh *WebSocketHandler) write(ws *websocket.Conn, client *wsClient, msg WSMessage) bool {
	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(msg); err != nil {
		klog.V(1).Infof("[WebSocket %s] failed to send message: %v", client.widgetID, err)
		client.close()
		return false
	}
	return true
}

func (wsh *WebSocketHandler) enqueueSnapshot(client *wsClient) {
	if snapshot, ok := wsh.sessions.Snapshot(client.widgetID); ok {
		client.enqueue(newMessage(MsgTypeSnapshot, client.widgetID, snapshot))
	}
}

func (wsh *WebSocketHandler) sendError(client *wsClient, message, code string) {
	client.enqueue(newMessage(MsgTypeError, client.widgetID, WSErrorResponse{
		Message: message,
		Code:    code,
	}))
}

func newMessage(msgType, id string, payload any) WSMessage {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	return msg
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
