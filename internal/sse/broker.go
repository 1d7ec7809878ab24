// Package sse streams rule sync, save, delete and import notifications to
// connected clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/rulesync/internal/models"
)

// Event is a named SSE frame. Data is marshalled to JSON.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RuleEvent is the payload of every rule.* frame.
type RuleEvent struct {
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	At          time.Time `json:"at"`
}

// CatalogEvent is the payload of a catalog.updated frame. Changes counts the
// store mutations folded into it.
type CatalogEvent struct {
	Changes int       `json:"changes"`
	At      time.Time `json:"at"`
}

// storeKinds maps each known rule event kind to whether it mutates the
// shared store. Imports only write into a project.
var storeKinds = map[string]bool{
	"synced":   true,
	"saved":    true,
	"deleted":  true,
	"imported": false,
}

const (
	clientBuffer      = 64
	defaultCatalogGap = 2 * time.Second
	defaultHeartbeat  = 25 * time.Second
)

// Broker fans rule events out to SSE clients.
//
// One goroutine owns the client set, the frame sequence and the catalog
// throttle. Exported methods talk to it over channels.
type Broker struct {
	catalogGap time.Duration
	heartbeat  time.Duration

	joins    chan chan []byte
	leaves   chan chan []byte
	frames   chan Event
	rules    chan models.SyncEvent
	counts   chan chan int
	quit     chan struct{}
	finished chan struct{}
	closed   atomic.Bool
}

// NewBroker starts a broker that emits at most one catalog.updated frame per
// catalogGap. Mutations arriving inside the gap are reported by one trailing
// frame when it ends.
func NewBroker(catalogGap time.Duration) *Broker {
	if catalogGap <= 0 {
		catalogGap = defaultCatalogGap
	}
	b := &Broker{
		catalogGap: catalogGap,
		heartbeat:  defaultHeartbeat,
		joins:      make(chan chan []byte),
		leaves:     make(chan chan []byte),
		frames:     make(chan Event, 256),
		rules:      make(chan models.SyncEvent, 256),
		counts:     make(chan chan int),
		quit:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// clientSet is owned by the broker loop.
type clientSet map[chan []byte]struct{}

// send never blocks: a client whose buffer is full misses the frame.
func (cs clientSet) send(frame []byte) {
	for ch := range cs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (cs clientSet) closeAll() {
	for ch := range cs {
		close(ch)
		delete(cs, ch)
	}
}

// frame renders one SSE message with an id line.
func frame(id uint64, typ string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, typ, payload), nil
}

func (b *Broker) loop() {
	defer close(b.finished)

	clients := clientSet{}
	var seq uint64
	emit := func(typ string, data interface{}) {
		seq++
		msg, err := frame(seq, typ, data)
		if err != nil {
			return
		}
		clients.send(msg)
	}

	// Catalog throttle: lastCatalog is when the previous frame went out,
	// unreported counts mutations since then.
	var lastCatalog time.Time
	unreported := 0
	trailing := time.NewTimer(time.Hour)
	trailing.Stop()
	defer trailing.Stop()
	trailingArmed := false

	flushCatalog := func(now time.Time) {
		emit("catalog.updated", CatalogEvent{Changes: unreported, At: now})
		lastCatalog = now
		unreported = 0
	}

	for {
		select {
		case <-b.quit:
			clients.closeAll()
			return

		case ch := <-b.joins:
			clients[ch] = struct{}{}

		case ch := <-b.leaves:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case resp := <-b.counts:
			resp <- len(clients)

		case ev := <-b.frames:
			emit(ev.Type, ev.Data)

		case ev := <-b.rules:
			mutates, known := storeKinds[ev.Kind]
			if !known {
				continue
			}
			now := time.Now()
			emit("rule."+ev.Kind, RuleEvent{
				Kind:        ev.Kind,
				Name:        ev.Name,
				Source:      ev.Source,
				Destination: ev.Destination,
				At:          now,
			})
			if !mutates {
				continue
			}
			unreported++
			if wait := b.catalogGap - now.Sub(lastCatalog); wait > 0 {
				if !trailingArmed {
					trailing.Reset(wait)
					trailingArmed = true
				}
				continue
			}
			flushCatalog(now)

		case now := <-trailing.C:
			trailingArmed = false
			if unreported > 0 {
				flushCatalog(now)
			}
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.finished
}

// Subscribe registers a client. The returned channel is closed on
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joins <- ch:
	case <-b.finished:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaves <- ch:
	case <-b.finished:
	}
}

// ClientCount reports the number of subscribed clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.finished:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.finished:
		return 0
	}
}

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.frames <- event:
	case <-b.finished:
	}
}

// PublishRuleEvent broadcasts a rule.<kind> frame. Store mutations also feed
// the catalog.updated throttle. Unknown kinds are dropped.
func (b *Broker) PublishRuleEvent(ev models.SyncEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.rules <- ev:
	case <-b.finished:
	}
}

// ServeHTTP streams events to one client (GET /api/events). A comment line
// is written periodically so idle proxies keep the connection open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
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
