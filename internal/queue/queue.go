// Package queue implements the crawl queue: a priority queue with a
// per-domain rate gate and seen/in-flight dedup sets.
//
// This replaces the teacher's buffered-channel-plus-polling-ticker design
// (internal/crawler/manager.go: monitorQueue) with an explicit heap guarded
// by a mutex/condvar, so drain detection is exact rather than guessed by
// sleeping and re-checking.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rankriot/scanner/internal/canon"
	"github.com/rankriot/scanner/internal/model"
)

// ErrQueueDrained is returned by Next when no item is available and no
// item is in flight, or when the queue has been paused.
var ErrQueueDrained = errors.New("queue: drained")

// SeedPriority is the priority assigned to a scan's seed URL.
const SeedPriority = 100

// DiscoveredPriority returns the priority for a link discovered at depth d.
func DiscoveredPriority(depth int) int {
	p := 100 - 10*depth
	if p < 0 {
		p = 0
	}
	return p
}

type itemHeap []*model.QueueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].AddedAt.Before(h[j].AddedAt)
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(*model.QueueItem))
}
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a bounded-concurrency-safe priority queue with per-domain
// politeness. The zero value is not usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     itemHeap
	seen     map[string]struct{}
	inFlight map[string]struct{}
	paused   bool

	limiterMu    sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultDelay time.Duration
	delayFor     func(host string) time.Duration
}

// New creates an empty Queue. defaultDelay is used as the per-domain delay
// when delayFor (typically the scan's robots policy CrawlDelay lookup) is
// nil or returns no override for a host.
func New(defaultDelay time.Duration, delayFor func(host string) time.Duration) *Queue {
	q := &Queue{
		seen:         make(map[string]struct{}),
		inFlight:     make(map[string]struct{}),
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
		delayFor:     delayFor,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add canonicalizes item.URL and inserts it unless already seen. Returns
// false if the item was dropped (invalid URL or duplicate).
func (q *Queue) Add(item model.QueueItem) bool {
	canonical, err := canon.Canonicalize(item.URL, item.Referrer)
	if err != nil {
		return false
	}
	item.URL = canonical
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.seen[canonical]; ok {
		return false
	}
	q.seen[canonical] = struct{}{}
	heap.Push(&q.heap, &item)
	q.cond.Broadcast()
	return true
}

// Next returns the highest-priority item (FIFO within ties), applying the
// per-domain rate gate before returning. It blocks while the queue is
// empty but something remains in flight, waking on Add/Done/Pause/Resume
// or context cancellation. It returns ErrQueueDrained once nothing is
// queued or in flight, or once the queue has been paused.
func (q *Queue) Next(ctx context.Context) (model.QueueItem, error) {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
	}

	q.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return model.QueueItem{}, err
		}
		if q.paused {
			q.mu.Unlock()
			return model.QueueItem{}, ErrQueueDrained
		}
		if q.heap.Len() > 0 {
			item := heap.Pop(&q.heap).(*model.QueueItem)
			q.inFlight[item.URL] = struct{}{}
			q.mu.Unlock()

			if err := q.waitRateGate(ctx, item.URL); err != nil {
				q.mu.Lock()
				delete(q.inFlight, item.URL)
				q.cond.Broadcast()
				q.mu.Unlock()
				return model.QueueItem{}, err
			}
			return *item, nil
		}
		if len(q.inFlight) == 0 {
			q.mu.Unlock()
			return model.QueueItem{}, ErrQueueDrained
		}
		q.cond.Wait()
	}
}

func (q *Queue) waitRateGate(ctx context.Context, rawURL string) error {
	host := canon.Host(rawURL)
	if host == "" {
		return nil
	}
	return q.limiterFor(host).Wait(ctx)
}

func (q *Queue) limiterFor(host string) *rate.Limiter {
	q.limiterMu.Lock()
	defer q.limiterMu.Unlock()

	if l, ok := q.limiters[host]; ok {
		return l
	}
	delay := q.defaultDelay
	if q.delayFor != nil {
		if d := q.delayFor(host); d > 0 {
			delay = d
		}
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(delay), 1)
	q.limiters[host] = l
	return l
}

// Done marks rawURL (after canonicalization) as no longer in flight.
func (q *Queue) Done(rawURL string) {
	canonical, err := canon.Canonicalize(rawURL, "")
	if err != nil {
		canonical = rawURL
	}
	q.mu.Lock()
	delete(q.inFlight, canonical)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Clear resets the queue to empty, including seen/in-flight state.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.heap = nil
	q.seen = make(map[string]struct{})
	q.inFlight = make(map[string]struct{})
	q.paused = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Pause causes Next to return ErrQueueDrained immediately, used when the
// page budget has been reached mid-scan.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Resume clears a prior Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Size returns the number of items currently queued (not in flight).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Pending returns the number of items currently in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
