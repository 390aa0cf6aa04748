package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// Event types pushed to stream clients
const (
	EventSnapshot = "snapshot"
	EventFilter   = "filter"
	EventRecords  = "records"
	EventError    = "error"
	EventPong     = "pong"
)

// ClientMessage is the envelope for client-to-server stream messages
type ClientMessage struct {
	Type string          `json:"type"` // "setFilter", "setColumnFilter", "ping"
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ColumnFilterData is the payload of "setColumnFilter"
type ColumnFilterData struct {
	Field  string          `json:"field"`
	Filter json.RawMessage `json:"filter"`
}

// Event is the envelope for server-to-client stream messages
type Event struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// SnapshotData is sent once when a stream opens
type SnapshotData struct {
	Fields  []FieldInfo     `json:"fields"`
	Filter  json.RawMessage `json:"filter"`
	Records RecordsPage     `json:"records"`
}

// ErrorData carries a failed request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stream is one websocket client. Store notifications mark pending event
// kinds; the writer goroutine coalesces them and sends the current state.
type stream struct {
	reactive.Reactive

	srv    *Server
	conn   *websocket.Conn
	notify chan struct{}

	mu      sync.Mutex
	pending map[string]bool
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	st := &stream{
		srv:     s,
		conn:    conn,
		notify:  make(chan struct{}, 1),
		pending: make(map[string]bool),
	}
	defer st.Destroy()

	// Changes racing the snapshot are queued and sent after it
	if err := st.watch(); err != nil {
		s.logger.Error("failed to watch store", "error", err)
		return
	}
	if err := st.send(ctx, Event{Type: EventSnapshot, Data: s.snapshot()}); err != nil {
		return
	}

	go st.writeLoop(ctx)

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		st.handle(ctx, msg)
	}
}

func (s *Server) snapshot() SnapshotData {
	data, _ := filter.Marshal(s.store.Filter())
	return SnapshotData{
		Fields:  s.fieldInfos(),
		Filter:  data,
		Records: s.recordsPage(0, defaultPageSize),
	}
}

// watch marks filter and records events on store notifications
func (st *stream) watch() error {
	bind := st.srv.store
	if _, err := st.AddReaction(reactive.ReactionSpec{
		Name:  "stream filter",
		Deps:  []reactive.Source{bind.FilterChanges()},
		Track: func() any { return bind.Filter() },
		Run:   func(any) { st.mark(EventFilter) },
		Equals: func(a, b any) bool {
			fa, _ := a.(filter.Filter)
			fb, _ := b.(filter.Filter)
			return filter.Equal(fa, fb)
		},
	}); err != nil {
		return err
	}
	_, err := st.AddReaction(reactive.ReactionSpec{
		Name:   "stream records",
		Deps:   []reactive.Source{bind.RecordsChanges()},
		Track:  func() any { return nil },
		Run:    func(any) { st.mark(EventRecords) },
		Equals: func(a, b any) bool { return false },
	})
	return err
}

func (st *stream) mark(kind string) {
	st.mu.Lock()
	st.pending[kind] = true
	st.mu.Unlock()
	select {
	case st.notify <- struct{}{}:
	default:
	}
}

func (st *stream) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.notify:
		}
		st.mu.Lock()
		pending := st.pending
		st.pending = make(map[string]bool)
		st.mu.Unlock()

		// Filter goes first so clients can label the records that follow
		for _, kind := range []string{EventFilter, EventRecords} {
			if !pending[kind] {
				continue
			}
			if err := st.send(ctx, st.event(kind)); err != nil {
				return
			}
		}
	}
}

func (st *stream) event(kind string) Event {
	s := st.srv
	if kind == EventFilter {
		data, _ := filter.Marshal(s.store.Filter())
		return Event{Type: EventFilter, Data: json.RawMessage(data)}
	}
	return Event{Type: EventRecords, Data: s.recordsPage(0, defaultPageSize)}
}

func (st *stream) handle(ctx context.Context, msg ClientMessage) {
	var err error
	switch msg.Type {
	case "ping":
		_ = st.send(ctx, Event{Type: EventPong, RequestID: msg.ID})
		return
	case "setFilter":
		var f filter.Filter
		if f, err = filter.Parse(msg.Data); err == nil {
			err = st.srv.store.SetFilter(f)
		}
	case "setColumnFilter":
		var data ColumnFilterData
		if err = json.Unmarshal(msg.Data, &data); err == nil {
			var f filter.Filter
			if f, err = filter.Parse(data.Filter); err == nil {
				err = st.srv.grid.SetColumnFilters(data.Field, f)
			}
		}
	default:
		st.sendError(ctx, msg.ID, "UNKNOWN_TYPE", "unknown message type: "+msg.Type)
		return
	}
	if err != nil {
		st.sendError(ctx, msg.ID, "INVALID_FILTER", err.Error())
	}
}

func (st *stream) send(ctx context.Context, ev Event) error {
	if err := wsjson.Write(ctx, st.conn, ev); err != nil {
		st.srv.logger.Debug("websocket write failed", "event", ev.Type, "error", err)
		return err
	}
	return nil
}

func (st *stream) sendError(ctx context.Context, requestID, code, message string) {
	_ = st.send(ctx, Event{
		Type:      EventError,
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}
