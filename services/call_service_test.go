package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/errors"
	"care-relay/mocks"
	"care-relay/observability"
	"care-relay/repositories"
	"care-relay/runtime"
)

type callFixture struct {
	calls    *CallService
	registry *runtime.Registry
	notifs   *repositories.NotificationRepository
}

func newCallFixture(t *testing.T) callFixture {
	t.Helper()
	db := openTestDB(t)
	log := testLogger()

	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockIPushDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	registry := runtime.NewRegistry()
	stats := observability.NewStats()
	notifs := repositories.NewNotificationRepository(db, log)
	notifier := NewNotificationService(notifs, registry, dispatcher, stats, log)
	calls := NewCallService(registry, repositories.NewVideoCallRepository(db, log), notifier, stats, log)

	return callFixture{calls: calls, registry: registry, notifs: notifs}
}

var (
	caller   = domain.Identity{Role: domain.RolePatient, ID: "p1"}
	receiver = domain.Identity{Role: domain.RoleDoctor, ID: "d1"}
)

func TestRelayForwardsOfferWithCallerStamp(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	sink := &recordingSink{}
	f.registry.Register(receiver, sink)

	replies := f.calls.Relay(context.Background(), CallEvent{
		Kind:     event.TypeCallOffer,
		From:     caller,
		FromName: "Pat",
		To:       receiver,
		Payload:  map[string]any{"sdp": "v=0"},
	})
	req.Empty(replies)

	events := sink.received()
	req.Len(events, 1)
	req.Equal(event.TypeCallOffer, events[0].Type)
	payload, ok := events[0].Payload.(map[string]any)
	req.True(ok)
	req.Equal("v=0", payload["sdp"])
	req.Equal("p1", payload["fromUserId"])
	req.Equal("patient", payload["fromUserType"])
	req.Equal("Pat", payload["fromName"])
}

func TestRelayRenamesInitiateRejectEnd(t *testing.T) {
	req := require.New(t)
	req.Equal(event.TypeCallIncoming, forwardType(event.TypeCallInitiate))
	req.Equal(event.TypeCallRejected, forwardType(event.TypeCallReject))
	req.Equal(event.TypeCallEnded, forwardType(event.TypeCallEnd))
	req.Equal(event.TypeCallAnswer, forwardType(event.TypeCallAnswer))
	req.Equal(event.TypeCallICE, forwardType(event.TypeCallICE))
}

func TestRelayOfferOfflineNotifiesAndReportsBack(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	replies := f.calls.Relay(context.Background(), CallEvent{
		Kind:     event.TypeCallOffer,
		From:     caller,
		FromName: "Pat",
		To:       receiver,
		Payload:  map[string]any{"sdp": "v=0"},
	})
	req.Len(replies, 1)
	req.Equal(event.TypeCallRecipientOffline, replies[0].Type)

	rows, err := f.notifs.ListForUser(receiver, 10)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal(domain.NotificationCall, rows[0].Type)
	req.Equal("Incoming video call from Pat", rows[0].Message)
}

func TestRelayOfflineNotificationFallsBackToRole(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	f.calls.Relay(context.Background(), CallEvent{
		Kind: event.TypeCallInitiate,
		From: caller,
		To:   receiver,
	})

	rows, err := f.notifs.ListForUser(receiver, 10)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("Incoming video call from your patient", rows[0].Message)
}

func TestRelayNonOfferFramesDropSilentlyWhenOffline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	for _, kind := range []event.Type{
		event.TypeCallAnswer, event.TypeCallICE, event.TypeCallReject,
		event.TypeCallBusy, event.TypeCallRenegotiate,
	} {
		replies := f.calls.Relay(context.Background(), CallEvent{Kind: kind, From: caller, To: receiver})
		req.Empty(replies, "kind %s", kind)
	}

	rows, err := f.notifs.ListForUser(receiver, 10)
	req.NoError(err)
	req.Empty(rows)
}

func TestRelayEndAcknowledgesCallerEvenWhenOffline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	replies := f.calls.Relay(context.Background(), CallEvent{Kind: event.TypeCallEnd, From: caller, To: receiver})
	req.Len(replies, 1)
	req.Equal(event.TypeCallEnded, replies[0].Type)
}

func TestRelayEndAcknowledgesCallerWhenOnline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	sink := &recordingSink{}
	f.registry.Register(receiver, sink)

	replies := f.calls.Relay(context.Background(), CallEvent{Kind: event.TypeCallEnd, From: caller, To: receiver})
	req.Len(replies, 1)
	req.Equal(event.TypeCallEnded, replies[0].Type)

	events := sink.received()
	req.Len(events, 1)
	req.Equal(event.TypeCallEnded, events[0].Type)
}

func TestRelayBackpressuredSinkYieldsCallError(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	f.registry.Register(receiver, &recordingSink{fail: errors.ErrSinkBackpressure})

	replies := f.calls.Relay(context.Background(), CallEvent{Kind: event.TypeCallICE, From: caller, To: receiver})
	req.Len(replies, 1)
	req.Equal(event.TypeCallError, replies[0].Type)
}

func TestCreateCallRejectsSameRole(t *testing.T) {
	f := newCallFixture(t)
	_, err := f.calls.CreateCall(caller, domain.Identity{Role: domain.RolePatient, ID: "p2"})
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
}

func TestCallLifecycle(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	call, err := f.calls.CreateCall(caller, receiver)
	req.NoError(err)
	req.Equal(domain.CallInitiated, call.Status)

	call, err = f.calls.UpdateCallStatus(call.ID, domain.CallOngoing)
	req.NoError(err)
	req.NotNil(call.AnsweredAt)

	call, err = f.calls.UpdateCallStatus(call.ID, domain.CallCompleted)
	req.NoError(err)
	req.NotNil(call.EndedAt)
	req.GreaterOrEqual(call.DurationSeconds, int64(0))

	// Terminal states are frozen.
	frozen, err := f.calls.UpdateCallStatus(call.ID, domain.CallOngoing)
	req.NoError(err)
	req.Equal(domain.CallCompleted, frozen.Status)

	_, err = f.calls.UpdateCallStatus(call.ID, "sleeping")
	req.Error(err)
	req.True(errors.IsValidation(err))

	listed, err := f.calls.ListCalls(caller, 10)
	req.NoError(err)
	req.Len(listed, 1)
}

func TestUpdateUnknownCall(t *testing.T) {
	f := newCallFixture(t)
	_, err := f.calls.UpdateCallStatus(uuid.New(), domain.CallRinging)
	require.ErrorIs(t, err, errors.ErrNotFound)
}
