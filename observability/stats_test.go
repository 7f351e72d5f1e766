package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	req := require.New(t)
	stats := NewStats()

	stats.MessageStored()
	stats.MessageStored()
	stats.CallEventRelayed()
	stats.NotificationStored()
	stats.DeliveryFailure()

	snap := stats.Snapshot(3)
	req.Equal(int64(2), snap.MessagesStored)
	req.Equal(int64(1), snap.CallEventsRelayed)
	req.Equal(int64(1), snap.NotificationsSaved)
	req.Equal(int64(1), snap.DeliveryFailures)
	req.Equal(3, snap.OnlineConnections)
	req.Positive(snap.Goroutines)
}

func TestCountersAreConcurrencySafe(t *testing.T) {
	stats := NewStats()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				stats.MessageStored()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(5000), stats.Snapshot(0).MessagesStored)
}
