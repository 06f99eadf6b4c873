// Package broadcast is the WebSocket fan-out for Snapshots, and the
// transport edge for the operator command grammar: a Hub/Client pair, a
// history-then-live-stream protocol for newly connecting clients, and a
// non-blocking per-client send so one slow dashboard can't back-pressure
// the others.
package broadcast

import (
	"log"
	"net/http"
	"time"

	"infusioncore/internal/core"
	"infusioncore/internal/history"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CommandSink applies an operator command parsed off a client's WebSocket
// connection. internal/core's Core satisfies this directly.
type CommandSink interface {
	OnCommand(cmd core.Command, nowMs int64) core.CommandResult
}

// Broadcaster receives Snapshots from the tick loop and fans them out to
// WebSocket clients as CSV text frames.
type Broadcaster struct {
	input  <-chan core.Snapshot
	buffer *history.RingBuffer
	sink   CommandSink
}

// NewBroadcaster wires a Broadcaster to its snapshot source, history
// buffer (for hydrating new clients), and command sink.
func NewBroadcaster(input <-chan core.Snapshot, buffer *history.RingBuffer, sink CommandSink) *Broadcaster {
	return &Broadcaster{input: input, buffer: buffer, sink: sink}
}

// Start launches the broadcast loop and HTTP server. Blocks.
func (b *Broadcaster) Start(addr string) {
	hub := newHub(b.buffer, b.sink)
	go hub.run(b.input)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	log.Printf("broadcaster listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}

// Hub maintains active clients and broadcasts CSV rows to all of them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	buffer     *history.RingBuffer
	sink       CommandSink
}

func newHub(buffer *history.RingBuffer, sink CommandSink) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		buffer:     buffer,
		sink:       sink,
	}
}

func (h *Hub) run(input <-chan core.Snapshot) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("client connected (%d total)", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("client disconnected (%d total)", len(h.clients))
			}
		case snap := <-input:
			msg := []byte(snap.CSVRow())
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client — drop this tick, don't kill the connection.
				}
			}
		}
	}
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// serveWs upgrades the HTTP connection, streams history before live
// ticks, then registers the client and starts its pumps.
//
// Protocol: each history row and each live tick is one CSV text frame in
// the fixed 26-column order. The client can tell history from live only by
// the fact that history arrives first, back to back, before any pause.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 4096)}

	if hub.buffer != nil {
		snapshots := hub.buffer.GetAll()
		for _, snap := range snapshots {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(snap.CSVRow())); err != nil {
				log.Printf("history stream interrupted: %v", err)
				conn.Close()
				return
			}
		}
		if len(snapshots) > 0 {
			log.Printf("streamed %d history snapshots to new client", len(snapshots))
		}
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		cmd, err := core.ParseCommand(string(msg))
		if err != nil {
			continue
		}
		if c.hub.sink != nil {
			c.hub.sink.OnCommand(cmd, time.Now().UnixMilli())
		}
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}
}
