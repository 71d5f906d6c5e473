package fountain

import (
	"sync"

	"github.com/pitscout/fountain/internal/utils/ringbuffer"
)

// DefaultScanQueueLen is the capacity of a ScanQueue created with a non-positive length.
const DefaultScanQueueLen = 32

// A ScanQueue hands scanned texts from a camera callback to a collector loop (see Collector.Consume).
// Frames keep coming no matter how far behind the collector is, so Add never blocks:
// a full queue rejects the text, and the frame will simply be scanned again.
type ScanQueue struct {
	mutex  sync.Mutex
	queue  ringbuffer.RingBuffer[string]
	maxLen int
	// hasData is notified whenever a text is added.
	hasData chan struct{}

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func NewScanQueue(maxLen int) *ScanQueue {
	if maxLen <= 0 {
		maxLen = DefaultScanQueueLen
	}
	q := &ScanQueue{
		maxLen:  maxLen,
		hasData: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	q.queue.Init(maxLen)
	return q
}

// Add queues a scanned text.
// Up to maxLen texts are queued, after that Add returns ErrQueueFull.
func (q *ScanQueue) Add(raw string) error {
	q.mutex.Lock()
	select {
	case <-q.closed:
		q.mutex.Unlock()
		return ErrQueueClosed
	default:
	}
	if q.queue.Len() >= q.maxLen {
		q.mutex.Unlock()
		return ErrQueueFull
	}
	q.queue.PushBack(raw)
	q.mutex.Unlock()

	select {
	case q.hasData <- struct{}{}:
	default:
	}
	return nil
}

// Peek gets the next text.
// If it is actually processed, Pop needs to be called before the next call to Peek.
func (q *ScanQueue) Peek() (string, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.queue.Empty() {
		return "", false
	}
	return q.queue.PeekFront(), true
}

func (q *ScanQueue) Pop() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if !q.queue.Empty() {
		_ = q.queue.PopFront()
	}
}

func (q *ScanQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.queue.Len()
}

// Close stops the queue from accepting texts. Texts already queued are still consumed.
func (q *ScanQueue) Close() { q.CloseWithError(nil) }

// CloseWithError closes the queue. Consume returns e once the queue is drained.
func (q *ScanQueue) CloseWithError(e error) {
	q.closeOnce.Do(func() {
		q.mutex.Lock()
		q.closeErr = e
		close(q.closed)
		q.mutex.Unlock()
	})
}
