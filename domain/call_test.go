package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallStatus_Terminal(t *testing.T) {
	req := require.New(t)
	for _, s := range []CallStatus{CallCompleted, CallRejected, CallMissed, CallFailed} {
		req.True(s.Terminal(), string(s))
	}
	for _, s := range []CallStatus{CallInitiated, CallRinging, CallOngoing} {
		req.False(s.Terminal(), string(s))
	}
	req.False(CallStatus("bogus").Valid())
}

func TestVideoCall_Duration(t *testing.T) {
	req := require.New(t)
	answered := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := answered.Add(3 * time.Minute)

	full := VideoCall{AnsweredAt: &answered, EndedAt: &ended}
	req.Equal(3*time.Minute, full.Duration())

	// A ringing call that was never answered has no duration.
	neverAnswered := VideoCall{EndedAt: &ended}
	req.Zero(neverAnswered.Duration())
	req.Zero(VideoCall{}.Duration())
}
