package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/session"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64 // only the latest snapshots matter, older ones are dropped
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient pushes every published snapshot to one dashboard page.
type WSClient struct {
	conn   *websocket.Conn
	srv    *Server
	sendCh chan model.WSMessage
	done   chan struct{}
	cancel func()
}

// NewWSClient creates a WSClient and subscribes it to snapshot updates.
func NewWSClient(conn *websocket.Conn, srv *Server) *WSClient {
	c := &WSClient{
		conn:   conn,
		srv:    srv,
		sendCh: make(chan model.WSMessage, sendBuffer),
		done:   make(chan struct{}),
	}
	c.cancel = srv.agg.Subscribe(func(model.MetricsSnapshot) {
		c.sendStats()
	})
	go c.writeLoop()
	c.sendState(srv.ctl.State())
	c.sendStats()
	return c
}

// SendMessage queues a message for async delivery. Non-blocking: drops if the
// buffer is full, except for control messages which displace one queued item.
func (c *WSClient) SendMessage(msg model.WSMessage) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.sendCh <- msg:
		return
	default:
	}
	if msg.Type == "stats" {
		return
	}
	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
	}
}

// writeLoop drains the send channel and writes to the WebSocket.
func (c *WSClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads commands from the page until the connection ends, then
// releases the snapshot subscription.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.cancel()
		close(c.done)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg model.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *WSClient) handleCommand(msg model.WSMessage) {
	ctl := c.srv.ctl
	switch msg.Type {
	case "get_state":
		c.sendState(ctl.State())

	case "get_stats":
		c.sendStats()

	case "toggle_capture":
		c.sendState(ctl.ToggleCapture())

	case "toggle_drawer":
		c.sendState(ctl.ToggleDrawer())

	case "select_view":
		var req viewRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("invalid select_view payload")
			return
		}
		v, err := session.ParseView(req.View)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendState(ctl.SelectView(v))

	case "connect":
		var req connectRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("invalid connect payload")
			return
		}
		var (
			st  session.State
			err error
		)
		switch {
		case req.Index != nil:
			st, err = ctl.ConnectIndex(*req.Index)
		case req.SSID != "":
			st, err = ctl.ConnectSSID(req.SSID)
		default:
			c.sendError("connect needs index or ssid")
			return
		}
		if err != nil {
			c.sendError("connect failed: " + err.Error())
			return
		}
		c.sendState(st)

	default:
		c.sendError("unknown command: " + msg.Type)
	}
}

func (c *WSClient) sendState(st session.State) {
	payload, _ := json.Marshal(c.srv.stateResponse(st))
	c.SendMessage(model.WSMessage{Type: "state", Payload: payload})
}

func (c *WSClient) sendStats() {
	payload, _ := json.Marshal(c.srv.statsBody())
	c.SendMessage(model.WSMessage{Type: "stats", Payload: payload})
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(model.ErrorPayload{Message: message})
	c.SendMessage(model.WSMessage{Type: "error", Payload: payload})
}

// HandleWebSocket is the HTTP handler for WebSocket upgrades.
func HandleWebSocket(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		client := NewWSClient(conn, srv)
		client.ReadLoop()
	}
}
