package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/mcadvchat/meshtp/log"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		// The reverse proxy in front of the gateway owns origin policy.
		return true
	},
}

// wsSubmission is what a browser client sends to put a message on the air.
type wsSubmission struct {
	Type string `json:"type,omitempty"`
	Dst  string `json:"dst,omitempty"`
	Msg  string `json:"msg"`
}

// wsClient wraps one connection with its write lock. The websocket allows a
// single concurrent writer per connection; broadcasts may come from the UDP
// receive loop and from any client's read loop at once, so every write must
// hold the client lock.
type wsClient struct {
	lock sync.Mutex
	conn *ws.Conn
}

func (c *wsClient) write(messageType int, raw []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn.WriteMessage(messageType, raw)
}

// WebsocketHub fans delivered mesh messages out to all connected browser
// clients and feeds client submissions into the outbound pipeline.
type WebsocketHub struct {
	lock    sync.Mutex
	clients map[*ws.Conn]*wsClient

	onSubmit func(dst, msg string)
}

func NewWebsocketHub(onSubmit func(dst, msg string)) *WebsocketHub {
	return &WebsocketHub{
		clients:  make(map[*ws.Conn]*wsClient),
		onSubmit: onSubmit,
	}
}

// Connect upgrades one HTTP request and serves the client until it drops.
func (h *WebsocketHub) Connect(writer http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Errorf("Websocket upgrade failure: %v", err)
		return
	}
	log.Infof1("Websocket client connected: %v", conn.RemoteAddr())

	client := &wsClient{conn: conn}
	h.lock.Lock()
	h.clients[conn] = client
	h.lock.Unlock()

	defer func() {
		h.lock.Lock()
		delete(h.clients, conn)
		h.lock.Unlock()
		conn.Close()
		log.Infof1("Websocket client gone: %v", conn.RemoteAddr())
	}()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != ws.TextMessage {
			continue
		}
		submission := &wsSubmission{}
		if err = json.Unmarshal(raw, submission); err != nil {
			log.Infof2("Invalid websocket submission from %v: %v", conn.RemoteAddr(), err)
			continue
		}
		if submission.Msg == "" || h.onSubmit == nil {
			continue
		}
		h.onSubmit(submission.Dst, submission.Msg)
	}
}

// Broadcast sends one JSON document to every connected client. Dead clients
// are dropped on write failure. Safe to call from any goroutine.
func (h *WebsocketHub) Broadcast(v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Broadcast marshal failure: %v", err)
		return
	}

	h.lock.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.lock.Unlock()

	for _, client := range targets {
		if err = client.write(ws.TextMessage, raw); err != nil {
			log.Infof1("Dropping websocket client %v: %v", client.conn.RemoteAddr(), err)
			h.lock.Lock()
			delete(h.clients, client.conn)
			h.lock.Unlock()
			client.conn.Close()
		}
	}
}

func (h *WebsocketHub) Count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}
