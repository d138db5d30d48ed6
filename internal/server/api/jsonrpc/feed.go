package jsonrpc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fxperp/fxperpd/internal/core/book"
)

const (
	feedSendBuffer = 256
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 54 * time.Second
	feedPongWait   = 60 * time.Second
	feedReadLimit  = 4096
)

// Feed pushes executed fills to websocket subscribers. It implements
// book.FillRecorder; a slow subscriber is disconnected rather than
// allowed to hold fills back.
type Feed struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[*feedConn]struct{}
}

type feedConn struct {
	conn *websocket.Conn
	send chan FillEvent
}

// NewFeed creates a fill feed.
func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   log.With().Str("component", "fill-feed").Logger(),
		conns: make(map[*feedConn]struct{}),
	}
}

// RecordFill implements book.FillRecorder.
func (f *Feed) RecordFill(fill book.Fill) {
	ev := FillEvent{
		Type:    "fill",
		Market:  fill.Index,
		Side:    fill.Side.String(),
		OrderID: fill.OrderID,
		Maker:   string(fill.Maker),
		Taker:   string(fill.Taker),
		Price:   fill.Price,
		Volume:  fill.Volume,
		Time:    fill.Time,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		select {
		case c.send <- ev:
		default:
			// Backpressure: drop the subscriber, not the fill.
			delete(f.conns, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the connection and streams fills until the client
// goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &feedConn{conn: conn, send: make(chan FillEvent, feedSendBuffer)}
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()

	go f.writePump(c)
	go f.readPump(c)
}

func (f *Feed) writePump(c *feedConn) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				f.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.drop(c)
				return
			}
		}
	}
}

// readPump discards client messages; the feed is push-only. It exists to
// process pongs and to notice a closed connection.
func (f *Feed) readPump(c *feedConn) {
	defer f.drop(c)
	c.conn.SetReadLimit(feedReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) drop(c *feedConn) {
	f.mu.Lock()
	if _, live := f.conns[c]; live {
		delete(f.conns, c)
		close(c.send)
	}
	f.mu.Unlock()
	c.conn.Close()
}

// CloseAll disconnects every subscriber, for shutdown.
func (f *Feed) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		delete(f.conns, c)
		close(c.send)
		c.conn.Close()
	}
}
