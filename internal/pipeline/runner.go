package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"sbahn-canon/internal/timetable"
)

var ErrStopped = errors.New("runner stopped")

// MergeEvent is announced after every batch that reached the store.
type MergeEvent struct {
	BatchID   string    `json:"batch_id"`
	Received  int       `json:"received"`
	Added     int       `json:"added"`
	StoreRows int       `json:"store_rows"`
	Version   int64     `json:"version"`
	MergedAt  time.Time `json:"merged_at"`
}

// Publisher is implemented by bus.Publisher.
type Publisher interface {
	PublishMerged(ev MergeEvent) error
}

// Runner feeds batches to a Pipeline from a single worker goroutine, so
// merges are applied one at a time in submission order.
type Runner struct {
	pipeline *Pipeline
	pub      Publisher
	queue    chan timetable.Batch

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	onMerge func(Report)
}

func NewRunner(p *Pipeline, pub Publisher, queueSize int) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		pipeline: p,
		pub:      pub,
		queue:    make(chan timetable.Batch, queueSize),
		done:     make(chan struct{}),
	}
}

// OnMerge registers a callback run on the worker after each successful merge.
func (r *Runner) OnMerge(fn func(Report)) {
	r.mu.Lock()
	r.onMerge = fn
	r.mu.Unlock()
}

func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				if n := len(r.queue); n > 0 {
					log.Printf("ingest runner stopping with %d queued batches", n)
				}
				return
			case b := <-r.queue:
				r.pipeline.metrics.SetQueueDepth(len(r.queue))
				// a batch that was picked up is merged even if Stop runs meanwhile
				r.process(context.WithoutCancel(ctx), b)
			}
		}
	}()
}

// Submit enqueues a batch. It blocks while the queue is full.
func (r *Runner) Submit(ctx context.Context, b timetable.Batch) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.queue <- b:
		r.pipeline.metrics.SetQueueDepth(len(r.queue))
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the worker and waits for it to exit. A batch already taken
// off the queue is merged to completion first; queued batches are not.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
}

func (r *Runner) process(ctx context.Context, b timetable.Batch) {
	rep, err := r.pipeline.Ingest(ctx, b)
	switch {
	case errors.Is(err, timetable.ErrEmptyBatch):
		log.Printf("batch %s skipped: no delay signal in %d records", b.ID, rep.Records)
		return
	case err != nil:
		log.Printf("batch %s error: %v", b.ID, err)
		return
	}
	log.Printf("batch %s merged: %d/%d added, store has %d rows (version %d)",
		b.ID, rep.Merge.Added, rep.Merge.Received, rep.Merge.Rows, rep.Merge.Version)

	r.mu.Lock()
	fn := r.onMerge
	r.mu.Unlock()
	if fn != nil {
		fn(rep)
	}
	if r.pub == nil {
		return
	}
	ev := MergeEvent{
		BatchID:   b.ID,
		Received:  rep.Merge.Received,
		Added:     rep.Merge.Added,
		StoreRows: rep.Merge.Rows,
		Version:   rep.Merge.Version,
		MergedAt:  time.Now().UTC(),
	}
	if err := r.pub.PublishMerged(ev); err != nil {
		log.Printf("publish merge event for %s: %v", b.ID, err)
	}
}
