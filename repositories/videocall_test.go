package repositories

import (
	"care-relay/domain"
	"care-relay/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newCall() domain.VideoCall {
	return domain.VideoCall{
		CallerID: "p1", CallerType: domain.RolePatient,
		ReceiverID: "d1", ReceiverType: domain.RoleDoctor,
	}
}

func TestVideoCallRepository_Create_Defaults(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	call := newCall()
	req.NoError(repo.Create(&call))
	req.NotZero(call.ID)
	req.Equal(domain.CallInitiated, call.Status)

	fetched, err := repo.Get(call.ID)
	req.NoError(err)
	req.Equal(call.ID, fetched.ID)
}

func TestVideoCallRepository_Happy_Path_Computes_Duration(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	call := newCall()
	req.NoError(repo.Create(&call))

	answered := time.Now().UTC()
	_, err := repo.UpdateStatus(call.ID, domain.CallRinging, answered.Add(-time.Second))
	req.NoError(err)
	_, err = repo.UpdateStatus(call.ID, domain.CallOngoing, answered)
	req.NoError(err)

	done, err := repo.UpdateStatus(call.ID, domain.CallCompleted, answered.Add(90*time.Second))
	req.NoError(err)
	req.Equal(domain.CallCompleted, done.Status)
	req.Equal(int64(90), done.DurationSeconds)
	req.NotNil(done.AnsweredAt)
	req.NotNil(done.EndedAt)
}

func TestVideoCallRepository_Unanswered_Call_Has_Zero_Duration(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	call := newCall()
	req.NoError(repo.Create(&call))

	missed, err := repo.UpdateStatus(call.ID, domain.CallMissed, time.Now().UTC())
	req.NoError(err)
	req.Equal(domain.CallMissed, missed.Status)
	req.Nil(missed.AnsweredAt)
	req.Zero(missed.DurationSeconds)
}

func TestVideoCallRepository_Terminal_State_Is_Frozen(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	call := newCall()
	req.NoError(repo.Create(&call))
	_, err := repo.UpdateStatus(call.ID, domain.CallRejected, time.Now().UTC())
	req.NoError(err)

	// A late client report cannot resurrect a finished call.
	after, err := repo.UpdateStatus(call.ID, domain.CallOngoing, time.Now().UTC())
	req.NoError(err)
	req.Equal(domain.CallRejected, after.Status)
}

func TestVideoCallRepository_Get_Missing(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	_, err := repo.Get(uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = repo.UpdateStatus(uuid.New(), domain.CallOngoing, time.Now().UTC())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestVideoCallRepository_ListForUser_Covers_Both_Sides(t *testing.T) {
	req := require.New(t)
	repo := NewVideoCallRepository(openTestDB(t), slog.Default())

	call := newCall()
	req.NoError(repo.Create(&call))

	caller, err := repo.ListForUser(domain.Identity{Role: domain.RolePatient, ID: "p1"}, 10)
	req.NoError(err)
	req.Len(caller, 1)

	receiver, err := repo.ListForUser(domain.Identity{Role: domain.RoleDoctor, ID: "d1"}, 10)
	req.NoError(err)
	req.Len(receiver, 1)
	req.Equal(call.ID, receiver[0].ID)
}
