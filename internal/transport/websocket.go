// Package transport implements the duplex WebSocket front-end: one
// connection carries many requests, each driven by the orchestrator and
// streamed back as EventEnvelope frames, serialized per connection.
package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"manifold/internal/rag/orchestrator"
	"manifold/internal/rag/protocol"
)

// clientMessage is one frame read from the client.
type clientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// userInputPayload mirrors protocol.UserInput's wire shape.
type userInputPayload struct {
	Text           string         `json:"text"`
	Mode           string         `json:"mode"`
	Metadata       map[string]any `json:"metadata"`
	RetrievalPrefs map[string]any `json:"retrieval_prefs"`
	Debug          bool           `json:"debug"`
}

// Server is a WebSocket JSON duplex server driving one Orchestrator per
// rag.request frame. Each connection may have many in-flight requests;
// rag.cancel sets that request's cancellation flag.
type Server struct {
	Orchestrator orchestrator.Orchestrator

	upgrader websocket.Upgrader
}

// NewServer wires a Server around an Orchestrator.
func NewServer(o orchestrator.Orchestrator) *Server {
	return &Server{
		Orchestrator: o,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// connState tracks one connection's in-flight request contexts and
// serializes writes to the underlying socket.
type connState struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	reqMu sync.Mutex
	reqs  map[string]*protocol.RequestContext
	cncl  map[string]context.CancelFunc
}

func newConnState(conn *websocket.Conn) *connState {
	return &connState{
		conn: conn,
		reqs: make(map[string]*protocol.RequestContext),
		cncl: make(map[string]context.CancelFunc),
	}
}

// Emit implements protocol.EventSink, writing one JSON frame per call
// under the connection's write lock.
func (c *connState) Emit(ctx context.Context, envelope protocol.EventEnvelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(envelope)
}

func (c *connState) register(requestID string, reqCtx *protocol.RequestContext, cancel context.CancelFunc) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	c.reqs[requestID] = reqCtx
	c.cncl[requestID] = cancel
}

func (c *connState) unregister(requestID string) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	delete(c.reqs, requestID)
	delete(c.cncl, requestID)
}

// cancel sets the cancellation flag and cancels the context for
// requestID. Idempotent; a missing request id is a no-op.
func (c *connState) cancel(requestID string) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	if reqCtx, ok := c.reqs[requestID]; ok {
		reqCtx.Cancel()
	}
	if cancel, ok := c.cncl[requestID]; ok {
		cancel()
	}
}

// cancelAll runs on disconnect: every in-flight request on this
// connection is cancelled.
func (c *connState) cancelAll() {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	for _, reqCtx := range c.reqs {
		reqCtx.Cancel()
	}
	for _, cancel := range c.cncl {
		cancel()
	}
}

// ServeHTTP upgrades the connection and runs its duplex read loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ragorchd: websocket upgrade failed: %v", err)
		return
	}
	cs := newConnState(conn)
	defer func() {
		cs.cancelAll()
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "rag.request":
			s.handleRequest(cs, msg)
		case "rag.cancel":
			cs.cancel(msg.RequestID)
		}
	}
}

func (s *Server) handleRequest(cs *connState, msg clientMessage) {
	var payload userInputPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("ragorchd: invalid rag.request payload: %v", err)
			return
		}
	}
	input := protocol.UserInput{
		Text:           payload.Text,
		Mode:           protocol.Mode(payload.Mode),
		Metadata:       payload.Metadata,
		RetrievalPrefs: payload.RetrievalPrefs,
		Debug:          payload.Debug,
	}

	requestID := msg.RequestID
	if requestID == "" {
		requestID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	traceID := strconv.FormatInt(time.Now().UnixNano(), 10)
	reqCtx := protocol.NewRequestContext(requestID, traceID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cs.register(requestID, reqCtx, cancel)

	go func() {
		defer cancel()
		defer cs.unregister(requestID)
		if err := s.Orchestrator.Run(ctx, reqCtx, input, cs); err != nil {
			log.Printf("ragorchd: orchestrator run failed for request %s: %v", requestID, err)
		}
	}()
}
