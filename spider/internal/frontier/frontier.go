// Package frontier holds the per-run crawl state: pending URLs in discovery
// order, every URL ever admitted, and how many taken URLs are still being
// processed.
package frontier

import (
	"container/heap"
	"context"
	"sync"
)

type URLItem struct {
	URL   string
	seq   uint64
	index int
}

// PriorityQueue orders by admission sequence, which makes it a FIFO.
type PriorityQueue []*URLItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*URLItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *PriorityQueue
	visited  map[string]bool
	inFlight int
	nextSeq  uint64
	closed   bool
}

func New() *Frontier {
	pq := make(PriorityQueue, 0)
	heap.Init(&pq)

	f := &Frontier{
		queue:   &pq,
		visited: make(map[string]bool),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add marks url visited and enqueues it. It reports false if url was
// already visited; the check and the insert happen under one lock.
func (f *Frontier) Add(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.admit(url) {
		return false
	}
	f.cond.Signal()
	return true
}

// AddAll admits urls in order and returns how many were new.
func (f *Frontier) AddAll(urls []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	for _, url := range urls {
		if f.admit(url) {
			added++
		}
	}
	if added > 0 {
		f.cond.Broadcast()
	}
	return added
}

func (f *Frontier) admit(url string) bool {
	if f.closed || url == "" || f.visited[url] {
		return false
	}
	f.visited[url] = true

	heap.Push(f.queue, &URLItem{URL: url, seq: f.nextSeq})
	f.nextSeq++
	return true
}

// Next takes the oldest pending URL and counts it as in flight until Done
// is called. It waits while the queue is empty but other URLs are still in
// flight, since those may discover more. It returns false once the queue is
// empty with nothing in flight, after Close, or when ctx is done.
func (f *Frontier) Next(ctx context.Context) (string, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cond.Broadcast()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if ctx.Err() != nil || f.closed {
			return "", false
		}
		if f.queue.Len() > 0 {
			item := heap.Pop(f.queue).(*URLItem)
			f.inFlight++
			return item.URL, true
		}
		if f.inFlight == 0 {
			// Terminal: wake the other waiters so they exit too.
			f.cond.Broadcast()
			return "", false
		}
		f.cond.Wait()
	}
}

// Done marks one URL returned by Next as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// Close stops handing out URLs. Pending URLs stay visited.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// MarkVisited records url as seen without queueing it. It reports whether
// url was new.
func (f *Frontier) MarkVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if url == "" || f.visited[url] {
		return false
	}
	f.visited[url] = true
	return true
}

func (f *Frontier) Visited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[url]
}

func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
