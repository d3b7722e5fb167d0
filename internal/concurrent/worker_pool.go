package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cashback/internal/domain"
	"cashback/pkg/logger"
	"cashback/pkg/metrics"
)

type EventProcessor = func(ctx context.Context, event *domain.LedgerEvent) error

type WorkerPool struct {
	numWorkers     int
	jobQueue       chan *domain.LedgerEvent
	processor      EventProcessor
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	logger         logger.Logger
	started        bool
	mutex          sync.RWMutex
	activeWorkers  int32
	statsCollector *StatsCollector
}

func NewWorkerPool(numWorkers int, queueSize int, processor EventProcessor, logger logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers:     numWorkers,
		jobQueue:       make(chan *domain.LedgerEvent, queueSize),
		processor:      processor,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		statsCollector: NewStatsCollector(),
	}
}

func (wp *WorkerPool) Start() {
	wp.mutex.Lock()
	defer wp.mutex.Unlock()

	if wp.started {
		return
	}

	wp.logger.Info("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"queue_size":  cap(wp.jobQueue),
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		workerID := i
		go func() {
			defer wp.wg.Done()
			wp.worker(workerID)
		}()
	}

	wp.started = true
}

// Stop closes the queue, waits for workers to drain what was already
// accepted and then cancels the pool context.
func (wp *WorkerPool) Stop() {
	wp.mutex.Lock()
	if !wp.started {
		wp.mutex.Unlock()
		return
	}
	wp.started = false
	close(wp.jobQueue)
	wp.mutex.Unlock()

	wp.logger.Info("Stopping worker pool", map[string]interface{}{"pending": len(wp.jobQueue)})
	wp.wg.Wait()
	wp.cancel()
}

// Submit never blocks. It reports false when the pool is stopped or the
// queue is full.
func (wp *WorkerPool) Submit(event *domain.LedgerEvent) bool {
	wp.mutex.RLock()
	defer wp.mutex.RUnlock()

	if !wp.started {
		return false
	}

	select {
	case wp.jobQueue <- event:
		wp.statsCollector.IncrementSubmitted()
		metrics.UpdateWorkerPoolStats(len(wp.jobQueue), int(atomic.LoadInt32(&wp.activeWorkers)))
		wp.logger.Debug("Event queued", map[string]interface{}{
			"event_id": event.ID,
			"type":     event.Type,
		})
		return true
	default:
		wp.statsCollector.IncrementRejected()
		wp.logger.Warn("Event queue full, event rejected", map[string]interface{}{
			"event_id": event.ID,
		})
		return false
	}
}

func (wp *WorkerPool) worker(id int) {
	wp.logger.Debug("Worker started", map[string]interface{}{"worker_id": id})

	for event := range wp.jobQueue {
		wp.process(id, event)
	}

	wp.logger.Debug("Job queue closed, worker stopping", map[string]interface{}{"worker_id": id})
}

func (wp *WorkerPool) process(id int, event *domain.LedgerEvent) {
	active := atomic.AddInt32(&wp.activeWorkers, 1)
	metrics.UpdateWorkerPoolStats(len(wp.jobQueue), int(active))
	defer func() {
		active := atomic.AddInt32(&wp.activeWorkers, -1)
		metrics.UpdateWorkerPoolStats(len(wp.jobQueue), int(active))
	}()

	startTime := time.Now()
	err := wp.processor(wp.ctx, event)
	processingTime := time.Since(startTime)

	if err != nil {
		fields := map[string]interface{}{
			"worker_id":       id,
			"event_id":        event.ID,
			"type":            event.Type,
			"error":           err.Error(),
			"processing_time": processingTime.String(),
		}
		if domain.IsBusinessError(err) {
			wp.statsCollector.IncrementDeclined()
			wp.logger.Info("Event declined", fields)
			return
		}
		wp.statsCollector.IncrementFailed()
		wp.logger.Error("Event processing failed", fields)
		return
	}

	wp.statsCollector.RecordCompleted(event.Type, processingTime)
	wp.logger.Info("Event processed", map[string]interface{}{
		"worker_id":       id,
		"event_id":        event.ID,
		"type":            event.Type,
		"processing_time": processingTime.String(),
	})
}

func (wp *WorkerPool) GetStats() Stats {
	return wp.statsCollector.GetStats()
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) QueueCapacity() int {
	return cap(wp.jobQueue)
}
