package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"shortly/pkg/logging"
)

// Store is the durable destination for click events.
type Store interface {
	InsertClickEvents(ctx context.Context, evs []ClickEvent) error
}

// Dispatcher is a channel-backed Sink that batches events into the store
// from a pool of background workers. Publish never blocks: when the buffer
// is full the event is dropped and logged.
type Dispatcher struct {
	store  Store
	logger *logging.Logger

	queue         chan ClickEvent
	workers       int
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type DispatcherConfig struct {
	Workers       int
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

var errQueueFull = errors.New("events: queue full, event dropped")

func NewDispatcher(store Store, logger *logging.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Dispatcher{
		store:         store,
		logger:        logger,
		queue:         make(chan ClickEvent, cfg.BufferSize),
		workers:       cfg.Workers,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		flushTimeout:  10 * time.Second,
	}
}

// Start launches the worker pool. Workers drain until Close.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run()
		}()
	}
}

func (d *Dispatcher) Publish(ctx context.Context, ev ClickEvent) error {
	select {
	case d.queue <- ev:
		return nil
	default:
		return errQueueFull
	}
}

// Close stops accepting events, flushes what is queued and waits for the
// workers to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	batch := make([]ClickEvent, 0, d.batchSize)
	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				d.flush(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.batchSize {
				d.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (d *Dispatcher) flush(batch []ClickEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.flushTimeout)
	defer cancel()

	if err := d.store.InsertClickEvents(ctx, batch); err != nil {
		d.logger.Error(ctx, "failed to flush click events", "count", len(batch), "error", err)
	}
}
