// Package sse streams classification outcomes to operator panels as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/yardmove/internal/classify"
)

// Event types sent to clients.
const (
	EventZonesLoaded      = "zones.loaded"
	EventLoadFailed       = "zones.load_failed"
	EventZoneReclassified = "zone.reclassified"
	EventReclassifyFailed = "zone.reclassify_failed"
	EventListsChanged     = "lists.changed"
)

const clientBuffer = 64

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithKeepAlive sets the interval of comment frames that keep idle
// connections open through proxies. Zero disables them.
func WithKeepAlive(d time.Duration) BrokerOption {
	return func(b *Broker) { b.keepAlive = d }
}

// WithHistory sets how many recent frames are kept for Last-Event-ID replay.
func WithHistory(n int) BrokerOption {
	return func(b *Broker) {
		if n >= 0 && n < clientBuffer {
			b.historySize = n
		}
	}
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	after  uint64
	replay bool
}

// Broker fans classification outcomes out to SSE clients.
//
// A single event loop goroutine owns the client set, the frame history and
// the throttle timestamp; public methods talk to it over channels.
type Broker struct {
	listsMin    time.Duration
	keepAlive   time.Duration
	historySize int

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	outcomeCh     chan classify.Outcome
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits lists.changed at most once per
// listsThrottle.
func NewBroker(listsThrottle time.Duration, opts ...BrokerOption) *Broker {
	if listsThrottle <= 0 {
		listsThrottle = time.Second
	}

	b := &Broker{
		listsMin:      listsThrottle,
		keepAlive:     15 * time.Second,
		historySize:   32,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		outcomeCh:     make(chan classify.Outcome, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, b.historySize)
	var seq uint64
	var lastLists time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		if b.historySize > 0 {
			if len(history) == b.historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, frame{id: seq, raw: raw})
		}

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if !sub.replay {
				continue
			}
			for _, f := range history {
				if f.id > sub.after {
					sub.ch <- f.raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case o := <-b.outcomeCh:
			broadcast(Event{Type: eventType(o), Data: o})
			if !o.OK {
				continue
			}
			if now := time.Now(); now.Sub(lastLists) >= b.listsMin {
				lastLists = now
				broadcast(Event{Type: EventListsChanged, Data: map[string]int{
					"plain":  o.Plain,
					"tagged": o.Tagged,
				}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a new client and first replays the retained frames
// with an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscription{after: lastID, replay: true})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.ch)
	}
	return sub.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify implements classify.Notifier: it publishes the outcome and, for
// successful operations, a throttled lists.changed event.
func (b *Broker) Notify(o classify.Outcome) {
	if b.closed.Load() {
		return
	}
	select {
	case b.outcomeCh <- o:
	case <-b.stopped:
	}
}

func eventType(o classify.Outcome) string {
	switch {
	case o.Op == classify.OpLoad && o.OK:
		return EventZonesLoaded
	case o.Op == classify.OpLoad:
		return EventLoadFailed
	case o.OK:
		return EventZoneReclassified
	default:
		return EventReclassifyFailed
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// client that sends Last-Event-ID receives the retained frames it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(last)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
