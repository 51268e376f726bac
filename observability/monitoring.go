// Package observability aggregates live counters about the relay for the
// debug inspector and the health endpoint.
package observability

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor collects relay-wide telemetry. All counters are atomic; the
// process stats are written by the health monitoring worker.
type Monitor struct {
	startedAt time.Time

	ActiveConnections int64
	ConnectionsTotal  uint64
	BroadcastsTotal   uint64
	MessagesPersisted uint64
	FramesDropped     uint64
	HistoriesServed   uint64
	SearchQueries     uint64

	mu         sync.RWMutex
	cpuPercent float64
	memPercent float32
}

func NewMonitor() *Monitor {
	return &Monitor{startedAt: time.Now().UTC()}
}

func (m *Monitor) ConnectionOpened() {
	atomic.AddInt64(&m.ActiveConnections, 1)
	atomic.AddUint64(&m.ConnectionsTotal, 1)
}

func (m *Monitor) ConnectionClosed() {
	atomic.AddInt64(&m.ActiveConnections, -1)
}

func (m *Monitor) IncrBroadcasts()        { atomic.AddUint64(&m.BroadcastsTotal, 1) }
func (m *Monitor) IncrMessagesPersisted() { atomic.AddUint64(&m.MessagesPersisted, 1) }
func (m *Monitor) IncrFramesDropped()     { atomic.AddUint64(&m.FramesDropped, 1) }
func (m *Monitor) IncrHistoriesServed()   { atomic.AddUint64(&m.HistoriesServed, 1) }
func (m *Monitor) IncrSearchQueries()     { atomic.AddUint64(&m.SearchQueries, 1) }

// SetProcessStats records the latest CPU/RAM sample of the relay process.
func (m *Monitor) SetProcessStats(cpuPercent float64, memPercent float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuPercent = cpuPercent
	m.memPercent = memPercent
}

// Snapshot exposes the current state for the inspector's stats panel.
func (m *Monitor) Snapshot() map[string]any {
	m.mu.RLock()
	cpu, mem := m.cpuPercent, m.memPercent
	m.mu.RUnlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]any{
		"Uptime":            time.Since(m.startedAt).Round(time.Second).String(),
		"ActiveConnections": atomic.LoadInt64(&m.ActiveConnections),
		"ConnectionsTotal":  atomic.LoadUint64(&m.ConnectionsTotal),
		"BroadcastsTotal":   atomic.LoadUint64(&m.BroadcastsTotal),
		"MessagesPersisted": atomic.LoadUint64(&m.MessagesPersisted),
		"FramesDropped":     atomic.LoadUint64(&m.FramesDropped),
		"HistoriesServed":   atomic.LoadUint64(&m.HistoriesServed),
		"SearchQueries":     atomic.LoadUint64(&m.SearchQueries),
		"CPUPercent":        cpu,
		"MemPercent":        mem,
		"AllocMemMb":        ms.Alloc / 1024 / 1024,
		"NumGC":             ms.NumGC,
		"GoroutineCount":    runtime.NumGoroutine(),
	}
}
