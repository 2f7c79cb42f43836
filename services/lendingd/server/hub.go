package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lendledger/native/lending"
)

const (
	subscriberBuffer = 64
	wsWriteTimeout   = 5 * time.Second
)

// EventFilter selects the events a subscriber receives. Zero fields match
// everything.
type EventFilter struct {
	LoanID  lending.LoanID
	Account lending.AccountID
}

func (f EventFilter) matches(ev lending.Event) bool {
	if f.LoanID != 0 && ev.LoanID != f.LoanID {
		return false
	}
	if !f.Account.IsZero() && ev.Caller.String() != f.Account.String() && ev.Borrower.String() != f.Account.String() {
		return false
	}
	return true
}

type subscriber struct {
	filter EventFilter
	ch     chan lending.Event
}

// Hub fans committed engine events out to websocket subscribers. Publish
// never blocks: a subscriber whose buffer is full is dropped.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

var _ lending.EventSink = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a subscriber. The returned channel is closed when
// cancel is called or the subscriber falls behind.
func (h *Hub) Subscribe(filter EventFilter) (<-chan lending.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{filter: filter, ch: make(chan lending.Event, subscriberBuffer)}
	h.subs[id] = sub
	return sub.ch, func() { h.remove(id) }
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Publish(ev lending.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("event subscriber too slow, dropping", "subscriber", id)
			delete(h.subs, id)
			close(sub.ch)
		}
	}
}

// ServeWS streams events as JSON frames. Query parameters loan and account
// narrow the stream.
func (h *Hub) ServeWS(originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseEventFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
			return
		}
		events, cancel := h.Subscribe(filter)
		defer cancel()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			h.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream closed")

		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
					return
				}
				if err := h.write(ctx, conn, eventView(ev)); err != nil {
					return
				}
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, payload)
}

func parseEventFilter(r *http.Request) (EventFilter, error) {
	var filter EventFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("loan")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.LoanID = lending.LoanID(id)
	}
	filter.Account = lending.AccountID(strings.TrimSpace(q.Get("account")))
	return filter, nil
}
