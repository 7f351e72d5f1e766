// Package observability exposes process and relay counters for the
// stats endpoint.
package observability

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats aggregates monotonically increasing relay counters. All
// methods are safe for concurrent use.
type Stats struct {
	startedAt time.Time

	messagesStored     atomic.Int64
	callEventsRelayed  atomic.Int64
	notificationsSaved atomic.Int64
	deliveryFailures   atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now().UTC()}
}

func (s *Stats) MessageStored()      { s.messagesStored.Add(1) }
func (s *Stats) CallEventRelayed()   { s.callEventsRelayed.Add(1) }
func (s *Stats) NotificationStored() { s.notificationsSaved.Add(1) }
func (s *Stats) DeliveryFailure()    { s.deliveryFailures.Add(1) }

// Snapshot is the serializable view returned by the stats endpoint.
type Snapshot struct {
	UptimeSeconds      int64   `json:"uptimeSeconds"`
	OnlineConnections  int     `json:"onlineConnections"`
	MessagesStored     int64   `json:"messagesStored"`
	CallEventsRelayed  int64   `json:"callEventsRelayed"`
	NotificationsSaved int64   `json:"notificationsSaved"`
	DeliveryFailures   int64   `json:"deliveryFailures"`
	Goroutines         int     `json:"goroutines"`
	HeapAllocBytes     uint64  `json:"heapAllocBytes"`
	ProcessCPUPercent  float64 `json:"processCpuPercent"`
	ProcessRSSBytes    uint64  `json:"processRssBytes"`
}

// Snapshot reads the counters plus runtime and OS process figures.
// Process metrics degrade to zero when the OS refuses them.
func (s *Stats) Snapshot(online int) Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := Snapshot{
		UptimeSeconds:      int64(time.Since(s.startedAt).Seconds()),
		OnlineConnections:  online,
		MessagesStored:     s.messagesStored.Load(),
		CallEventsRelayed:  s.callEventsRelayed.Load(),
		NotificationsSaved: s.notificationsSaved.Load(),
		DeliveryFailures:   s.deliveryFailures.Load(),
		Goroutines:         runtime.NumGoroutine(),
		HeapAllocBytes:     mem.HeapAlloc,
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return snap
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.ProcessCPUPercent = cpu
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		snap.ProcessRSSBytes = memInfo.RSS
	}
	return snap
}
