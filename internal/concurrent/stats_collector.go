package concurrent

import (
	"sync"
	"sync/atomic"
	"time"

	"cashback/internal/domain"
)

type Stats struct {
	Submitted       int64
	Completed       int64
	Failed          int64
	Declined        int64
	Rejected        int64
	AvgProcessTime  time.Duration
	CompletedByType map[domain.EventType]int64
	LastProcessedAt time.Time
}

type StatsCollector struct {
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	declined  atomic.Int64
	rejected  atomic.Int64

	mutex           sync.RWMutex
	totalProcTime   time.Duration
	processedCount  int64
	completedByType map[domain.EventType]int64
	lastProcessedAt time.Time
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{completedByType: make(map[domain.EventType]int64)}
}

func (sc *StatsCollector) IncrementSubmitted() { sc.submitted.Add(1) }
func (sc *StatsCollector) IncrementFailed()    { sc.failed.Add(1) }
func (sc *StatsCollector) IncrementDeclined()  { sc.declined.Add(1) }
func (sc *StatsCollector) IncrementRejected()  { sc.rejected.Add(1) }

func (sc *StatsCollector) RecordCompleted(eventType domain.EventType, d time.Duration) {
	sc.completed.Add(1)

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.totalProcTime += d
	sc.processedCount++
	sc.completedByType[eventType]++
	sc.lastProcessedAt = time.Now()
}

func (sc *StatsCollector) GetStats() Stats {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	stats := Stats{
		Submitted:       sc.submitted.Load(),
		Completed:       sc.completed.Load(),
		Failed:          sc.failed.Load(),
		Declined:        sc.declined.Load(),
		Rejected:        sc.rejected.Load(),
		CompletedByType: make(map[domain.EventType]int64, len(sc.completedByType)),
		LastProcessedAt: sc.lastProcessedAt,
	}
	for k, v := range sc.completedByType {
		stats.CompletedByType[k] = v
	}

	if sc.processedCount > 0 {
		stats.AvgProcessTime = sc.totalProcTime / time.Duration(sc.processedCount)
	}

	return stats
}
