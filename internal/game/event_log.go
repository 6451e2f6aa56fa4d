package game

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize     = 1024                   // Circular buffer size
	BatchFlushSize      = 64                     // Events per batch write
	BatchFlushInterval  = 100 * time.Millisecond // How often to flush
	MatchLimiterCleanup = 5 * time.Minute        // Idle time before a match limiter is dropped

	DefaultMaxEventsPerSec   = 10000
	DefaultMaxEventsPerMatch = 200
)

// EventLogOptions tunes the limits of an EventLog. Zero values use defaults.
type EventLogOptions struct {
	MaxEventsPerSec   int
	MaxEventsPerMatch int
}

// EventLog provides bounded, rate-limited event logging with backpressure.
// Emit is safe to call from many room goroutines at once.
type EventLog struct {
	mu       sync.Mutex
	buffer   [EventBufferSize]Event
	nextSeq  uint64 // sequence of the next event written
	readSeq  uint64 // sequence of the oldest unflushed event
	perMatch int

	// Rate limiting so a single runaway room cannot flood the disk
	globalLimiter *rate.Limiter
	matchLimiters sync.Map // map[string]*matchLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out    io.Writer
	closer io.Closer
	outMu  sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type matchLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a new bounded event log. It accepts nothing until
// Start or StartWriter is called.
func NewEventLog(opts EventLogOptions) *EventLog {
	global := opts.MaxEventsPerSec
	if global <= 0 {
		global = DefaultMaxEventsPerSec
	}
	perMatch := opts.MaxEventsPerMatch
	if perMatch <= 0 {
		perMatch = DefaultMaxEventsPerMatch
	}
	return &EventLog{
		globalLimiter: rate.NewLimiter(rate.Limit(global), max(global/10, 1)),
		perMatch:      perMatch,
		stopChan:      make(chan struct{}),
		nextSeq:       1,
		readSeq:       1,
	}
}

// Start opens filePath for append and begins the async writer. An empty
// path keeps events in memory only.
func (el *EventLog) Start(filePath string) error {
	if filePath == "" {
		return el.StartWriter(nil)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	el.closer = file
	return el.StartWriter(file)
}

// StartWriter begins the async writer goroutines flushing JSONL to w.
func (el *EventLog) StartWriter(w io.Writer) error {
	if el.running.Swap(true) {
		return nil
	}
	el.out = w
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file, if any.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Swap(false) {
			return
		}
		close(el.stopChan)
		el.writerWg.Wait()

		el.outMu.Lock()
		if el.closer != nil {
			el.closer.Close()
		}
		el.outMu.Unlock()
	})
}

// Emit adds an event with rate limiting.
// Returns false if the log is not running or the event was rate limited.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.MatchID != "" && !el.matchLimiter(event.MatchID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	event.Sequence = el.nextSeq
	el.buffer[el.nextSeq%EventBufferSize] = event
	el.nextSeq++
	// Full buffer: the oldest unflushed event is overwritten.
	if el.nextSeq-el.readSeq > EventBufferSize {
		el.readSeq++
		el.droppedCount.Add(1)
	}
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple is a convenience method to emit an event with automatic creation
func (el *EventLog) EmitSimple(eventType EventType, turn uint64, matchID, playerID string, payload interface{}) bool {
	return el.Emit(NewEvent(eventType, turn, matchID, playerID, payload))
}

func (el *EventLog) matchLimiter(matchID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.matchLimiters.Load(matchID); ok {
		entry := v.(*matchLimiterEntry)
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	entry := &matchLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(el.perMatch), el.perMatch),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.matchLimiters.LoadOrStore(matchID, entry)
	return actual.(*matchLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			// Drain everything before exiting.
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(MatchLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupMatchLimiters()
		}
	}
}

func (el *EventLog) cleanupMatchLimiters() {
	cutoff := time.Now().Add(-MatchLimiterCleanup).UnixNano()
	el.matchLimiters.Range(func(key, value interface{}) bool {
		if value.(*matchLimiterEntry).lastUsed.Load() < cutoff {
			el.matchLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch moves up to BatchFlushSize pending events into batch.
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readSeq < el.nextSeq && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.readSeq%EventBufferSize])
		el.readSeq++
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	el.outMu.Lock()
	defer el.outMu.Unlock()

	if el.out == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		el.out.Write(data)
	}
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() map[string]interface{} {
	el.mu.Lock()
	pending := el.nextSeq - el.readSeq
	el.mu.Unlock()

	return map[string]interface{}{
		"total":   el.totalCount.Load(),
		"dropped": el.droppedCount.Load(),
		"pending": pending,
		"running": el.running.Load(),
	}
}

// DroppedCount returns the number of events lost to rate limits or overflow.
func (el *EventLog) DroppedCount() uint64 {
	return el.droppedCount.Load()
}

// TotalCount returns the number of events accepted.
func (el *EventLog) TotalCount() uint64 {
	return el.totalCount.Load()
}
