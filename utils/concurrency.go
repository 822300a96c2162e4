package utils

import (
	"sync"
	"time"
)

// WorkerPool manages a pool of goroutines with rate limiting. The record
// transformation step uses it with a zero rate limit: the work is pure
// CPU, only the concurrency cap matters there.
type WorkerPool struct {
	maxWorkers  int
	rateLimitMs int
	semaphore   chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastRequest time.Time
}

// NewWorkerPool creates a WorkerPool with the given concurrency and rate limit.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	return &WorkerPool{
		maxWorkers:  maxWorkers,
		rateLimitMs: rateLimitMs,
		semaphore:   make(chan struct{}, maxWorkers),
		lastRequest: time.Now(),
	}
}

// Submit enqueues a job for execution in the pool.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		wp.enforceRateLimit()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) enforceRateLimit() {
	if wp.rateLimitMs <= 0 {
		return
	}

	wp.mu.Lock()
	defer wp.mu.Unlock()

	minInterval := time.Duration(wp.rateLimitMs) * time.Millisecond
	elapsed := time.Since(wp.lastRequest)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	wp.lastRequest = time.Now()
}

// OrderedCounter counts string keys while remembering the order in which
// each key was first seen. Aggregation rankings break count ties by
// first-seen order, so the counter has to preserve it.
type OrderedCounter struct {
	mu     sync.RWMutex
	counts map[string]int
	order  []string
}

// NewOrderedCounter creates an empty OrderedCounter.
func NewOrderedCounter() *OrderedCounter {
	return &OrderedCounter{counts: make(map[string]int)}
}

// Add increments the count for key and returns the new count.
func (c *OrderedCounter) Add(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key]++
	return c.counts[key]
}

// Count returns the current count for key.
func (c *OrderedCounter) Count(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[key]
}

// Keys returns all keys in first-seen order.
func (c *OrderedCounter) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// Len returns the number of distinct keys tracked.
func (c *OrderedCounter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
