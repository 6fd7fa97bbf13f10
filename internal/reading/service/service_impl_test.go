package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	agentrepo "github.com/smallbiznis/fieldops/internal/agent/repository"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	assignmentrepo "github.com/smallbiznis/fieldops/internal/assignment/repository"
	"github.com/smallbiznis/fieldops/internal/clock"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	meterrepo "github.com/smallbiznis/fieldops/internal/meter/repository"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
	"github.com/smallbiznis/fieldops/internal/reading/repository"
	"github.com/smallbiznis/fieldops/internal/storetest"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	clock  *clock.FakeClock
	meters meterdomain.Repository
	meter  *meterdomain.Meter
	agent  *agentdomain.Agent
}

func setupReadingService(t *testing.T) *fixture {
	t.Helper()

	db := storetest.Open(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := fake.Now()

	meters := meterrepo.Provide()
	m := &meterdomain.Meter{
		ID:            uuid.New(),
		SerialNumber:  "SN-READ",
		Address:       "9 Quarry Hill",
		MeterType:     meterdomain.MeterTypeDigital,
		Priority:      meterdomain.PriorityHigh,
		Status:        meterdomain.StatusActive,
		EstimatedTime: meterdomain.DefaultEstimatedTime,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, meters.Insert(ctx, db, m))

	agents := agentrepo.Provide()
	a := &agentdomain.Agent{
		ID:        uuid.New(),
		UserID:    "agent-1",
		MaxLoad:   agentdomain.DefaultMaxLoad,
		Status:    agentdomain.StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, agents.Insert(ctx, db, a))

	svc := New(Params{
		DB:             db,
		Log:            zap.NewNop(),
		Clock:          fake,
		Repo:           repository.Provide(),
		MeterRepo:      meters,
		AgentRepo:      agents,
		AssignmentRepo: assignmentrepo.Provide(),
	})
	return &fixture{svc: svc.(*Service), db: db, clock: fake, meters: meters, meter: m, agent: a}
}

func value(v float64) *float64 { return &v }

func TestSubmitUpdatesLastReading(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	reading, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{
		MeterID:      f.meter.ID.String(),
		AgentID:      f.agent.ID.String(),
		ReadingValue: value(1250.5),
		Notes:        " seal intact ",
	})
	require.NoError(t, err)
	assert.True(t, reading.ReadingDate.Equal(f.clock.Now()))
	require.NotNil(t, reading.Notes)
	assert.Equal(t, "seal intact", *reading.Notes)
	assert.False(t, reading.IsVerified)

	meter, err := f.meters.FindByID(ctx, f.db, f.meter.ID)
	require.NoError(t, err)
	require.NotNil(t, meter.LastReading)
	assert.Equal(t, "1250.5", *meter.LastReading)
}

func TestSubmitValidation(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(-1)})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidValue)

	_, err = f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String()})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidValue)

	_, err = f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: uuid.NewString(), ReadingValue: value(3)})
	assert.ErrorIs(t, err, readingdomain.ErrMeterNotFound)

	_, err = f.svc.Submit(ctx, readingdomain.SubmitRequest{
		MeterID:      f.meter.ID.String(),
		AssignmentID: uuid.NewString(),
		ReadingValue: value(3),
	})
	assert.ErrorIs(t, err, readingdomain.ErrAssignmentNotFound)

	meter, err := f.meters.FindByID(ctx, f.db, f.meter.ID)
	require.NoError(t, err)
	assert.Nil(t, meter.LastReading)
}

func TestSubmitChecksAssignmentMeter(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()
	now := f.clock.Now()

	other := &meterdomain.Meter{
		ID:            uuid.New(),
		SerialNumber:  "SN-OTHER",
		MeterType:     meterdomain.MeterTypeAnalog,
		Priority:      meterdomain.PriorityLow,
		Status:        meterdomain.StatusActive,
		EstimatedTime: meterdomain.DefaultEstimatedTime,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.meters.Insert(ctx, f.db, other))

	assignment := &assignmentdomain.Assignment{
		ID:            uuid.New(),
		MeterID:       other.ID,
		AgentID:       f.agent.ID,
		AssignedBy:    "manager-1",
		Status:        assignmentdomain.StatusInProgress,
		EstimatedTime: 30,
		AssignedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, assignmentrepo.Provide().Insert(ctx, f.db, assignment))

	_, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{
		MeterID:      f.meter.ID.String(),
		AssignmentID: assignment.ID.String(),
		ReadingValue: value(10),
	})
	assert.ErrorIs(t, err, readingdomain.ErrAssignmentMismatch)

	reading, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{
		MeterID:      other.ID.String(),
		AssignmentID: assignment.ID.String(),
		ReadingValue: value(10),
	})
	require.NoError(t, err)
	require.NotNil(t, reading.AssignmentID)
	assert.Equal(t, assignment.ID, *reading.AssignmentID)
}

func TestVerifyOnce(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	reading, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(42)})
	require.NoError(t, err)

	verified, err := f.svc.Verify(ctx, readingdomain.VerifyRequest{ID: reading.ID.String(), VerifierID: "manager-1"})
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, "manager-1", *verified.VerifiedBy)

	_, err = f.svc.Verify(ctx, readingdomain.VerifyRequest{ID: reading.ID.String(), VerifierID: "manager-2"})
	assert.ErrorIs(t, err, readingdomain.ErrAlreadyVerified)

	loaded, err := f.svc.GetByID(ctx, reading.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "manager-1", *loaded.VerifiedBy)

	_, err = f.svc.Verify(ctx, readingdomain.VerifyRequest{ID: uuid.NewString(), VerifierID: "manager-1"})
	assert.ErrorIs(t, err, readingdomain.ErrNotFound)
}

func TestListByMeterNewestFirst(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()
	base := f.clock.Now()

	for i := 0; i < 3; i++ {
		date := base.Add(time.Duration(i) * time.Hour)
		_, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{
			MeterID:      f.meter.ID.String(),
			ReadingValue: value(float64(100 + i)),
			ReadingDate:  &date,
		})
		require.NoError(t, err)
	}

	page, err := f.svc.ListByMeter(ctx, readingdomain.ListRequest{
		Pagination: pagination.Pagination{Page: 1, Limit: 2},
		MeterID:    f.meter.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.True(t, page.Pagination.HasNext)
	require.Len(t, page.Items, 2)
	assert.InDelta(t, 102, page.Items[0].ReadingValue, 1e-9)

	_, err = f.svc.ListByMeter(ctx, readingdomain.ListRequest{MeterID: uuid.NewString()})
	assert.ErrorIs(t, err, readingdomain.ErrMeterNotFound)
}

func TestListFiltersReadings(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{
		MeterID:      f.meter.ID.String(),
		AgentID:      f.agent.ID.String(),
		ReadingValue: value(10),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(11)})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, readingdomain.VerifyRequest{ID: first.ID.String(), VerifierID: "manager-1"})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, readingdomain.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Pagination.Total)
	require.Len(t, all.Items, 2)
	assert.InDelta(t, 11, all.Items[0].ReadingValue, 1e-9)

	byAgent, err := f.svc.List(ctx, readingdomain.ListRequest{AgentID: f.agent.ID.String()})
	require.NoError(t, err)
	require.Len(t, byAgent.Items, 1)
	assert.Equal(t, first.ID, byAgent.Items[0].ID)

	unverified := false
	pending, err := f.svc.List(ctx, readingdomain.ListRequest{MeterID: f.meter.ID.String(), Verified: &unverified})
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	assert.False(t, pending.Items[0].IsVerified)

	_, err = f.svc.List(ctx, readingdomain.ListRequest{AgentID: "nope"})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidAgentID)
}

func TestUpdateLatestReadingMovesLastReading(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	older, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(100)})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	latest, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(120)})
	require.NoError(t, err)

	notes := "fixed typo"
	updated, err := f.svc.Update(ctx, readingdomain.UpdateRequest{
		ID:           latest.ID.String(),
		ReadingValue: value(121.5),
		Notes:        &notes,
	})
	require.NoError(t, err)
	assert.InDelta(t, 121.5, updated.ReadingValue, 1e-9)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "fixed typo", *updated.Notes)

	meter, err := f.meters.FindByID(ctx, f.db, f.meter.ID)
	require.NoError(t, err)
	require.NotNil(t, meter.LastReading)
	assert.Equal(t, "121.5", *meter.LastReading)

	// Correcting an older reading leaves last_reading alone.
	_, err = f.svc.Update(ctx, readingdomain.UpdateRequest{ID: older.ID.String(), ReadingValue: value(99)})
	require.NoError(t, err)
	meter, err = f.meters.FindByID(ctx, f.db, f.meter.ID)
	require.NoError(t, err)
	assert.Equal(t, "121.5", *meter.LastReading)

	loaded, err := f.svc.GetByID(ctx, older.ID.String())
	require.NoError(t, err)
	assert.InDelta(t, 99, loaded.ReadingValue, 1e-9)
}

func TestUpdateValidation(t *testing.T) {
	f := setupReadingService(t)
	ctx := context.Background()

	reading, err := f.svc.Submit(ctx, readingdomain.SubmitRequest{MeterID: f.meter.ID.String(), ReadingValue: value(5)})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, readingdomain.UpdateRequest{ID: reading.ID.String()})
	assert.ErrorIs(t, err, readingdomain.ErrEmptyUpdate)

	_, err = f.svc.Update(ctx, readingdomain.UpdateRequest{ID: reading.ID.String(), ReadingValue: value(-2)})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidValue)

	_, err = f.svc.Update(ctx, readingdomain.UpdateRequest{ID: reading.ID.String(), Latitude: value(91)})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidCoordinates)

	_, err = f.svc.Update(ctx, readingdomain.UpdateRequest{ID: uuid.NewString(), ReadingValue: value(1)})
	assert.ErrorIs(t, err, readingdomain.ErrNotFound)
}
