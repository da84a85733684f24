// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/camwatch/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only send small control messages.
	maxControlSize = 4 * 1024

	// maxStrikes is how many malformed or unknown control messages a viewer
	// may send before it is disconnected.
	maxStrikes = 5

	sendBuffer    = 256
	controlBuffer = 8
)

var clientIDCounter atomic.Uint64

// Client is one dashboard viewer. The hub pushes views and notices to it;
// the viewer may only send control messages (ping, resync).
//
// Views are state, not events: when several views are queued, the writer
// sends only the newest one and skips the rest.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// control carries replies to viewer requests. Unlike send it is never
	// closed, so readPump can always offer to it.
	control chan Message

	// lastView is the hub view most recently written. Only writePump uses it.
	lastView *Message
}

// NewClient creates a viewer bound to hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		control: make(chan Message, controlBuffer),
	}
}

// ID returns the viewer id. Ids increase in connection order.
func (c *Client) ID() uint64 {
	return c.id
}

// Start runs the viewer's read and write loops.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Debug().Err(err).Uint64("viewer", c.id).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	strikes := 0
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("viewer", c.id).Msg("viewer closed unexpectedly")
			}
			return
		}

		if c.handleControl(data) {
			continue
		}
		strikes++
		if strikes >= maxStrikes {
			logging.Warn().Uint64("viewer", c.id).Int("strikes", strikes).Msg("viewer sent too many invalid messages, disconnecting")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid control messages"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleControl applies one viewer message and reports whether it was valid.
func (c *Client) handleControl(data []byte) bool {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Debug().Err(err).Uint64("viewer", c.id).Msg("malformed viewer message")
		return false
	}

	switch msg.Type {
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
	case MessageTypeResync:
		c.reply(Message{Type: MessageTypeView})
	default:
		logging.Debug().Str("type", msg.Type).Uint64("viewer", c.id).Msg("unknown viewer message")
		return false
	}
	return true
}

// reply queues a control reply. Replies beyond the buffer are dropped.
func (c *Client) reply(msg Message) {
	select {
	case c.control <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if msg.Type == MessageTypeView {
				var fresh bool
				if msg, fresh = c.newestView(msg); !fresh {
					continue
				}
			}
			if err := c.write(msg); err != nil {
				logging.Debug().Err(err).Uint64("viewer", c.id).Msg("failed to write to viewer")
				return
			}

		case msg := <-c.control:
			if msg.Type == MessageTypeView {
				latest := c.hub.latestView()
				if latest == nil {
					continue
				}
				c.lastView = latest
				msg = *latest
			}
			if err := c.write(msg); err != nil {
				logging.Debug().Err(err).Uint64("viewer", c.id).Msg("failed to write to viewer")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// newestView replaces a queued view with the hub's latest one. It reports
// false when that view was already written.
func (c *Client) newestView(queued Message) (Message, bool) {
	latest := c.hub.latestView()
	if latest == nil {
		return queued, true
	}
	if latest == c.lastView {
		return queued, false
	}
	c.lastView = latest
	return *latest, true
}

func (c *Client) write(msg Message) error {
	payload, err := MarshalMessage(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", msg.Type).Msg("failed to encode viewer message")
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
