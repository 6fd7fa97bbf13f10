package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	agentrepo "github.com/smallbiznis/fieldops/internal/agent/repository"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	"github.com/smallbiznis/fieldops/internal/assignment/repository"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	meterrepo "github.com/smallbiznis/fieldops/internal/meter/repository"
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
	agents agentdomain.Repository
}

func setup(t *testing.T, policy config.Policy) *fixture {
	t.Helper()

	db := storetest.Open(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	f := &fixture{
		db:     db,
		clock:  fake,
		meters: meterrepo.Provide(),
		agents: agentrepo.Provide(),
	}
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     fake,
		Policy:    config.NewStaticPolicyHolder(policy),
		Repo:      repository.Provide(),
		MeterRepo: f.meters,
		AgentRepo: f.agents,
	})
	f.svc = svc.(*Service)
	return f
}

func (f *fixture) meter(t *testing.T, serial string) *meterdomain.Meter {
	t.Helper()
	now := f.clock.Now()
	m := &meterdomain.Meter{
		ID:            uuid.New(),
		SerialNumber:  serial,
		Address:       "1 Station Road",
		MeterType:     meterdomain.MeterTypeDigital,
		Priority:      meterdomain.PriorityMedium,
		Status:        meterdomain.StatusActive,
		EstimatedTime: 45,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.meters.Insert(context.Background(), f.db, m))
	return m
}

// agent inserts an available agent. Each call advances the clock so agents
// sort in creation order.
func (f *fixture) agent(t *testing.T, userID string, maxLoad int) *agentdomain.Agent {
	t.Helper()
	f.clock.Advance(time.Second)
	now := f.clock.Now()
	a := &agentdomain.Agent{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: userID,
		MaxLoad:     maxLoad,
		Status:      agentdomain.StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.agents.Insert(context.Background(), f.db, a))
	return a
}

func (f *fixture) load(t *testing.T, agentID uuid.UUID) int {
	t.Helper()
	a, err := f.agents.FindByID(context.Background(), f.db, agentID)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.CurrentLoad
}

func (f *fixture) activeCount(t *testing.T, meterID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM meter_assignments WHERE meter_id = ? AND status IN ('pending', 'in_progress')`,
		meterID,
	).Scan(&count).Error)
	return count
}

func (f *fixture) assign(t *testing.T, m *meterdomain.Meter, a *agentdomain.Agent) *assignmentdomain.Assignment {
	t.Helper()
	created, err := f.svc.Create(context.Background(), assignmentdomain.CreateRequest{
		MeterID:    m.ID.String(),
		AgentID:    a.ID.String(),
		AssignedBy: "manager-1",
	})
	require.NoError(t, err)
	return created
}

func status(s assignmentdomain.Status) *string {
	v := string(s)
	return &v
}

func TestCreateAssignmentIncrementsLoad(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	m := f.meter(t, "SN-1")
	a := f.agent(t, "agent-x", 5)

	created := f.assign(t, m, a)

	assert.Equal(t, assignmentdomain.StatusPending, created.Status)
	assert.Equal(t, 45, created.EstimatedTime)
	assert.Equal(t, "manager-1", created.AssignedBy)
	assert.Nil(t, created.CompletedAt)
	assert.Equal(t, 1, f.load(t, a.ID))

	loaded, err := f.svc.GetByID(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.MeterID)
}

func TestCreateAssignmentRejectsMissingReferences(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	m := f.meter(t, "SN-1")
	a := f.agent(t, "agent-x", 5)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, assignmentdomain.CreateRequest{MeterID: uuid.NewString(), AgentID: a.ID.String()})
	assert.ErrorIs(t, err, assignmentdomain.ErrMeterNotFound)

	_, err = f.svc.Create(ctx, assignmentdomain.CreateRequest{MeterID: m.ID.String(), AgentID: uuid.NewString()})
	assert.ErrorIs(t, err, assignmentdomain.ErrAgentNotFound)

	_, err = f.svc.Create(ctx, assignmentdomain.CreateRequest{MeterID: "nope", AgentID: a.ID.String()})
	assert.ErrorIs(t, err, assignmentdomain.ErrInvalidMeterID)

	zero := 0
	_, err = f.svc.Create(ctx, assignmentdomain.CreateRequest{MeterID: m.ID.String(), AgentID: a.ID.String(), EstimatedTime: &zero})
	assert.ErrorIs(t, err, assignmentdomain.ErrInvalidEstimatedTime)

	assert.Equal(t, 0, f.load(t, a.ID))
}

func TestCreateAssignmentConflictsWithInProgress(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	m := f.meter(t, "SN-1")
	x := f.agent(t, "agent-x", 5)
	y := f.agent(t, "agent-y", 5)

	first := f.assign(t, m, x)
	_, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: first.ID.String(), Status: status(assignmentdomain.StatusInProgress)})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, assignmentdomain.CreateRequest{MeterID: m.ID.String(), AgentID: y.ID.String()})
	assert.ErrorIs(t, err, assignmentdomain.ErrActiveAssignment)

	assert.Equal(t, int64(1), f.activeCount(t, m.ID))
	assert.Equal(t, 1, f.load(t, x.ID))
	assert.Equal(t, 0, f.load(t, y.ID))
}

func TestCreateAssignmentCapacityModes(t *testing.T) {
	t.Run("snapshot allows overload", func(t *testing.T) {
		f := setup(t, config.DefaultPolicy())
		a := f.agent(t, "agent-x", 1)
		f.assign(t, f.meter(t, "SN-1"), a)
		f.assign(t, f.meter(t, "SN-2"), a)
		assert.Equal(t, 2, f.load(t, a.ID))
	})

	t.Run("enforce rejects full agent", func(t *testing.T) {
		policy := config.DefaultPolicy()
		policy.Assignment.CapacityMode = config.CapacityEnforce
		f := setup(t, policy)
		a := f.agent(t, "agent-x", 1)
		f.assign(t, f.meter(t, "SN-1"), a)

		second := f.meter(t, "SN-2")
		_, err := f.svc.Create(context.Background(), assignmentdomain.CreateRequest{
			MeterID: second.ID.String(),
			AgentID: a.ID.String(),
		})
		assert.ErrorIs(t, err, assignmentdomain.ErrAgentAtCapacity)
		assert.Equal(t, 1, f.load(t, a.ID))
		assert.Equal(t, int64(0), f.activeCount(t, second.ID))
	})
}

func TestConcurrentCreateOnOneMeterHasSingleWinner(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	m := f.meter(t, "SN-RACE")
	agents := []*agentdomain.Agent{
		f.agent(t, "agent-a", 10),
		f.agent(t, "agent-b", 10),
		f.agent(t, "agent-c", 10),
		f.agent(t, "agent-d", 10),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, a := range agents {
		wg.Add(1)
		go func(agentID uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), assignmentdomain.CreateRequest{
				MeterID: m.ID.String(),
				AgentID: agentID.String(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, assignmentdomain.ErrActiveAssignment) {
				conflicts++
			}
		}(a.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(agents)-1, conflicts)
	assert.Equal(t, int64(1), f.activeCount(t, m.ID))

	total := 0
	for _, a := range agents {
		total += f.load(t, a.ID)
	}
	assert.Equal(t, 1, total)
}

func TestBulkAssignRoundRobin(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	x := f.agent(t, "agent-x", 10)
	y := f.agent(t, "agent-y", 10)
	a, b, c := f.meter(t, "SN-A"), f.meter(t, "SN-B"), f.meter(t, "SN-C")

	result, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{
		MeterIDs:   []string{a.ID.String(), b.ID.String(), c.ID.String()},
		AssignedBy: "manager-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.CreatedCount)
	assert.Empty(t, result.Skipped)
	require.Len(t, result.Assignments, 3)
	assert.Equal(t, x.ID, result.Assignments[0].AgentID)
	assert.Equal(t, y.ID, result.Assignments[1].AgentID)
	assert.Equal(t, x.ID, result.Assignments[2].AgentID)
	assert.Equal(t, a.ID, result.Assignments[0].MeterID)
	assert.Equal(t, c.ID, result.Assignments[2].MeterID)

	assert.Equal(t, 2, f.load(t, x.ID))
	assert.Equal(t, 1, f.load(t, y.ID))
}

func TestBulkAssignSkipsMetersWithActiveAssignment(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	x := f.agent(t, "agent-x", 10)
	y := f.agent(t, "agent-y", 10)
	a, b, c := f.meter(t, "SN-A"), f.meter(t, "SN-B"), f.meter(t, "SN-C")
	f.assign(t, b, y)

	result, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{
		MeterIDs: []string{a.ID.String(), b.ID.String(), c.ID.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.CreatedCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, b.ID, result.Skipped[0].MeterID)
	assert.Equal(t, assignmentdomain.SkipActiveAssignment, result.Skipped[0].Reason)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, a.ID, result.Assignments[0].MeterID)
	assert.Equal(t, x.ID, result.Assignments[0].AgentID)
	assert.Equal(t, c.ID, result.Assignments[1].MeterID)
	assert.Equal(t, y.ID, result.Assignments[1].AgentID)
	assert.Equal(t, systemActor, result.Assignments[0].AssignedBy)

	for _, m := range []*meterdomain.Meter{a, b, c} {
		assert.Equal(t, int64(1), f.activeCount(t, m.ID))
	}
}

func TestBulkAssignValidatesBeforeWriting(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	x := f.agent(t, "agent-x", 10)
	a := f.meter(t, "SN-A")

	_, err := f.svc.BulkAssign(ctx, assignmentdomain.BulkAssignRequest{})
	assert.ErrorIs(t, err, assignmentdomain.ErrEmptyMeterIDs)

	_, err = f.svc.BulkAssign(ctx, assignmentdomain.BulkAssignRequest{
		MeterIDs: []string{a.ID.String(), uuid.NewString()},
	})
	assert.ErrorIs(t, err, assignmentdomain.ErrMeterNotFound)
	assert.Equal(t, int64(0), f.activeCount(t, a.ID))
	assert.Equal(t, 0, f.load(t, x.ID))

	_, err = f.svc.BulkAssign(ctx, assignmentdomain.BulkAssignRequest{
		MeterIDs: []string{a.ID.String()},
		AgentID:  uuid.NewString(),
	})
	assert.ErrorIs(t, err, assignmentdomain.ErrAgentNotFound)
	assert.Equal(t, int64(0), f.activeCount(t, a.ID))
}

func TestBulkAssignDeduplicatesRequest(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	x := f.agent(t, "agent-x", 10)
	a := f.meter(t, "SN-A")

	result, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{
		MeterIDs: []string{a.ID.String(), a.ID.String()},
		AgentID:  x.ID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CreatedCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, assignmentdomain.SkipDuplicateInRequest, result.Skipped[0].Reason)
	assert.Equal(t, 1, f.load(t, x.ID))
}

func TestBulkAssignWithoutEligibleAgents(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	full := f.agent(t, "agent-full", 1)
	f.assign(t, f.meter(t, "SN-0"), full)
	a := f.meter(t, "SN-A")

	_, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{
		MeterIDs: []string{a.ID.String()},
	})
	assert.ErrorIs(t, err, assignmentdomain.ErrNoEligibleAgents)
	assert.Equal(t, int64(0), f.activeCount(t, a.ID))
}

func TestBulkAssignCapacityModes(t *testing.T) {
	meterIDs := func(t *testing.T, f *fixture) []string {
		ids := []string{}
		for _, serial := range []string{"SN-A", "SN-B", "SN-C", "SN-D"} {
			ids = append(ids, f.meter(t, serial).ID.String())
		}
		return ids
	}

	t.Run("snapshot rotates past max_load", func(t *testing.T) {
		f := setup(t, config.DefaultPolicy())
		x := f.agent(t, "agent-x", 1)
		y := f.agent(t, "agent-y", 2)

		result, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{MeterIDs: meterIDs(t, f)})
		require.NoError(t, err)
		assert.Equal(t, 4, result.CreatedCount)
		assert.Equal(t, 2, f.load(t, x.ID))
		assert.Equal(t, 2, f.load(t, y.ID))
	})

	t.Run("enforce drops full agents", func(t *testing.T) {
		policy := config.DefaultPolicy()
		policy.Assignment.CapacityMode = config.CapacityEnforce
		f := setup(t, policy)
		x := f.agent(t, "agent-x", 1)
		y := f.agent(t, "agent-y", 2)

		result, err := f.svc.BulkAssign(context.Background(), assignmentdomain.BulkAssignRequest{MeterIDs: meterIDs(t, f)})
		require.NoError(t, err)
		assert.Equal(t, 3, result.CreatedCount)
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, assignmentdomain.SkipNoCapacity, result.Skipped[0].Reason)
		assert.Equal(t, 1, f.load(t, x.ID))
		assert.Equal(t, 2, f.load(t, y.ID))
	})
}

func TestCompletingTwiceIsIdempotent(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	a := f.agent(t, "agent-x", 10)
	created := f.assign(t, f.meter(t, "SN-1"), a)
	require.Equal(t, 1, f.load(t, a.ID))

	f.clock.Advance(time.Hour)
	first, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: status(assignmentdomain.StatusCompleted)})
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, 0, f.load(t, a.ID))

	f.clock.Advance(time.Hour)
	second, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: status(assignmentdomain.StatusCompleted)})
	require.NoError(t, err)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
	assert.Equal(t, 0, f.load(t, a.ID))
}

func TestReleaseFloorsAtZero(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	a := f.agent(t, "agent-x", 10)
	created := f.assign(t, f.meter(t, "SN-1"), a)

	require.NoError(t, f.db.Exec(`UPDATE agents SET current_load = 0 WHERE id = ?`, a.ID).Error)

	_, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: status(assignmentdomain.StatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, 0, f.load(t, a.ID))
}

func TestCancelReleasesLoadOnlyWhenPolicyAllows(t *testing.T) {
	cases := []struct {
		name     string
		releases bool
		wantLoad int
	}{
		{name: "default keeps load", releases: false, wantLoad: 1},
		{name: "policy releases load", releases: true, wantLoad: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := config.DefaultPolicy()
			policy.Assignment.CancelReleasesLoad = tc.releases
			f := setup(t, policy)
			a := f.agent(t, "agent-x", 10)
			created := f.assign(t, f.meter(t, "SN-1"), a)

			cancelled, err := f.svc.Update(context.Background(), assignmentdomain.UpdateRequest{
				ID:     created.ID.String(),
				Status: status(assignmentdomain.StatusCancelled),
			})
			require.NoError(t, err)
			assert.Equal(t, assignmentdomain.StatusCancelled, cancelled.Status)
			assert.NotNil(t, cancelled.CompletedAt)
			assert.Equal(t, tc.wantLoad, f.load(t, a.ID))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		path []assignmentdomain.Status
		next assignmentdomain.Status
		ok   bool
	}{
		{path: nil, next: assignmentdomain.StatusInProgress, ok: true},
		{path: nil, next: assignmentdomain.StatusOverdue, ok: true},
		{path: []assignmentdomain.Status{assignmentdomain.StatusInProgress}, next: assignmentdomain.StatusPending, ok: false},
		{path: []assignmentdomain.Status{assignmentdomain.StatusOverdue}, next: assignmentdomain.StatusInProgress, ok: true},
		{path: []assignmentdomain.Status{assignmentdomain.StatusOverdue}, next: assignmentdomain.StatusPending, ok: false},
		{path: []assignmentdomain.Status{assignmentdomain.StatusCompleted}, next: assignmentdomain.StatusCancelled, ok: false},
		{path: []assignmentdomain.Status{assignmentdomain.StatusCancelled}, next: assignmentdomain.StatusInProgress, ok: false},
		{path: []assignmentdomain.Status{assignmentdomain.StatusCancelled}, next: assignmentdomain.StatusCancelled, ok: true},
	}
	for _, tc := range cases {
		t.Run(string(tc.next), func(t *testing.T) {
			f := setup(t, config.DefaultPolicy())
			ctx := context.Background()
			created := f.assign(t, f.meter(t, "SN-1"), f.agent(t, "agent-x", 10))
			for _, step := range tc.path {
				_, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: status(step)})
				require.NoError(t, err)
			}

			before, err := f.svc.GetByID(ctx, created.ID.String())
			require.NoError(t, err)

			_, err = f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: status(tc.next)})
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, assignmentdomain.ErrInvalidTransition)
			after, err := f.svc.GetByID(ctx, created.ID.String())
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
		})
	}
}

func TestUpdateValidatesPatch(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	created := f.assign(t, f.meter(t, "SN-1"), f.agent(t, "agent-x", 10))

	bogus := "paused"
	_, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: created.ID.String(), Status: &bogus})
	assert.ErrorIs(t, err, assignmentdomain.ErrInvalidStatus)

	_, err = f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: uuid.NewString(), Status: status(assignmentdomain.StatusCompleted)})
	assert.ErrorIs(t, err, assignmentdomain.ErrNotFound)

	minutes := 90
	notes := "  gate locked, call ahead  "
	updated, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{
		ID:              created.ID.String(),
		EstimatedTime:   &minutes,
		CompletionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, assignmentdomain.StatusPending, updated.Status)
	assert.Equal(t, 90, updated.EstimatedTime)
	require.NotNil(t, updated.CompletionNotes)
	assert.Equal(t, "gate locked, call ahead", *updated.CompletionNotes)
}

func TestReopeningOverdueConflictsWithNewAssignment(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	m := f.meter(t, "SN-1")
	x := f.agent(t, "agent-x", 10)
	y := f.agent(t, "agent-y", 10)

	old := f.assign(t, m, x)
	_, err := f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: old.ID.String(), Status: status(assignmentdomain.StatusOverdue)})
	require.NoError(t, err)
	f.assign(t, m, y)

	_, err = f.svc.Update(ctx, assignmentdomain.UpdateRequest{ID: old.ID.String(), Status: status(assignmentdomain.StatusInProgress)})
	assert.ErrorIs(t, err, assignmentdomain.ErrActiveAssignment)
	assert.Equal(t, int64(1), f.activeCount(t, m.ID))
}

func TestUpdateOwnStatusIsScopedToAgent(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	owner := f.agent(t, "agent-x", 10)
	other := f.agent(t, "agent-y", 10)
	created := f.assign(t, f.meter(t, "SN-1"), owner)

	_, err := f.svc.UpdateOwnStatus(ctx, other.ID, assignmentdomain.OwnStatusRequest{
		ID:     created.ID.String(),
		Status: string(assignmentdomain.StatusCompleted),
	})
	assert.ErrorIs(t, err, assignmentdomain.ErrNotFound)

	notes := "read and sealed"
	done, err := f.svc.UpdateOwnStatus(ctx, owner.ID, assignmentdomain.OwnStatusRequest{
		ID:              created.ID.String(),
		Status:          "COMPLETED",
		CompletionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, assignmentdomain.StatusCompleted, done.Status)
	assert.Equal(t, 0, f.load(t, owner.ID))

	mine, err := f.svc.ListByAgent(ctx, owner.ID, assignmentdomain.ListRequest{Status: "completed"})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, "read and sealed", *mine.Items[0].CompletionNotes)

	theirs, err := f.svc.ListByAgent(ctx, other.ID, assignmentdomain.ListRequest{AgentID: owner.ID.String()})
	require.NoError(t, err)
	assert.Empty(t, theirs.Items)
}

func TestListFiltersAssignments(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	x := f.agent(t, "agent-x", 10)
	y := f.agent(t, "agent-y", 10)
	m1 := f.meter(t, "SN-1")
	f.assign(t, m1, x)
	f.clock.Advance(time.Minute)
	f.assign(t, f.meter(t, "SN-2"), y)
	f.clock.Advance(time.Minute)
	latest := f.assign(t, f.meter(t, "SN-3"), x)

	all, err := f.svc.List(ctx, assignmentdomain.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Pagination.Total)
	assert.Equal(t, latest.ID, all.Items[0].ID)

	byAgent, err := f.svc.List(ctx, assignmentdomain.ListRequest{AgentID: x.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byAgent.Pagination.Total)

	byMeter, err := f.svc.List(ctx, assignmentdomain.ListRequest{MeterID: m1.ID.String(), Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byMeter.Pagination.Total)

	_, err = f.svc.List(ctx, assignmentdomain.ListRequest{Status: "lost"})
	assert.ErrorIs(t, err, assignmentdomain.ErrInvalidStatus)

	_, err = f.svc.List(ctx, assignmentdomain.ListRequest{AgentID: uuid.NewString()})
	assert.ErrorIs(t, err, assignmentdomain.ErrAgentNotFound)

	_, err = f.svc.List(ctx, assignmentdomain.ListRequest{MeterID: uuid.NewString()})
	assert.ErrorIs(t, err, assignmentdomain.ErrMeterNotFound)
}

func TestListByAgentPaginates(t *testing.T) {
	f := setup(t, config.DefaultPolicy())
	ctx := context.Background()
	x := f.agent(t, "agent-x", 10)
	f.assign(t, f.meter(t, "SN-1"), x)
	f.clock.Advance(time.Minute)
	f.assign(t, f.meter(t, "SN-2"), x)
	f.clock.Advance(time.Minute)
	latest := f.assign(t, f.meter(t, "SN-3"), x)

	first, err := f.svc.ListByAgent(ctx, x.ID, assignmentdomain.ListRequest{
		Pagination: pagination.Pagination{Page: 1, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Pagination.Total)
	assert.Equal(t, 2, first.Pagination.Pages)
	assert.True(t, first.Pagination.HasNext)
	require.Len(t, first.Items, 2)
	assert.Equal(t, latest.ID, first.Items[0].ID)

	second, err := f.svc.ListByAgent(ctx, x.ID, assignmentdomain.ListRequest{
		Pagination: pagination.Pagination{Page: 2, Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.False(t, second.Pagination.HasNext)

	_, err = f.svc.ListByAgent(ctx, uuid.Nil, assignmentdomain.ListRequest{})
	assert.ErrorIs(t, err, assignmentdomain.ErrInvalidAgentID)
}
