// Package sse implements a Server-Sent Events broker for tree and merge updates.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/selection"
)

// Event types sent to clients.
const (
	TypeTreeChanged     = "tree.changed"
	TypeTreeInvalidated = "tree.invalidated"
	TypeMergeProgress   = "merge.progress"
	TypeMergeFinished   = "merge.finished"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TreeChange is the payload of tree.changed.
type TreeChange struct {
	Addresses []string `json:"addresses"`
}

// Progress is the payload of merge.progress.
type Progress struct {
	RunID   uint64 `json:"run_id"`
	Percent int    `json:"percent"`
}

type progressReq struct {
	runID   uint64
	percent int
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + progress throttle state). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	progressCh    chan progressReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. Intermediate merge progress is sent at
// most once per progressThrottle; 0 and 100 always go out.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		progressCh:    make(chan progressReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastProgress time.Time
		lastRun      uint64
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

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

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.progressCh:
			now := time.Now()
			edge := req.percent == 0 || req.percent >= 100 || req.runID != lastRun
			if !edge && now.Sub(lastProgress) < b.progressMin {
				continue
			}
			lastProgress = now
			lastRun = req.runID
			broadcast(Event{Type: TypeMergeProgress, Data: Progress{RunID: req.runID, Percent: req.percent}})

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
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
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

// PublishTreeChange announces a check state change on addrs.
func (b *Broker) PublishTreeChange(addrs []selection.Address) {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	b.Publish(Event{Type: TypeTreeChanged, Data: TreeChange{Addresses: out}})
}

// PublishInvalidated announces that the whole tree must be re-read.
func (b *Broker) PublishInvalidated() {
	b.Publish(Event{Type: TypeTreeInvalidated, Data: struct{}{}})
}

// PublishProgress publishes a merge.progress event, subject to throttling.
func (b *Broker) PublishProgress(runID uint64, percent int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- progressReq{runID: runID, percent: percent}:
	case <-b.stopped:
	}
}

// PublishFinished publishes the outcome of a merge run.
func (b *Broker) PublishFinished(r merge.Result) {
	b.Publish(Event{Type: TypeMergeFinished, Data: r})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
