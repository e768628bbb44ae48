package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
)

func seedRule(t *testing.T, s *testServer, owner ledger.OwnerID, start string) {
	t.Helper()
	ctx := context.Background()
	day, err := ledger.ParseDay(start)
	require.NoError(t, err)
	cat, err := s.handler.Accounts.CreateCategory(ctx, owner, ledger.NewCategory{Name: "Rent", Kind: ledger.KindExpense})
	require.NoError(t, err)

	_, err = s.handler.Recurring.CreateRule(ctx, owner, ledger.NewRule{
		Description: "Rent",
		CategoryID:  cat.ID,
		Amount:      ledger.MustAmount("100"),
		Cadence:     ledger.CadenceMonthly,
		AnchorDay:   1,
		StartDate:   day,
	})
	require.NoError(t, err)
}

func TestScheduler_RunNowCoversEveryOwner(t *testing.T) {
	// GIVEN: Two owners with due rules and one whose rule is in the future
	s := newTestServer(t)
	seedRule(t, s, "alice", "2025-03-01")
	seedRule(t, s, "bob", "2025-03-10")
	seedRule(t, s, "carol", "2025-04-01")

	sched := NewRecurringScheduler(s.handler.Recurring, nil)
	sched.Now = fixedNow

	// WHEN: A pass runs
	summary := sched.RunNow(context.Background())

	// THEN: Each due owner gets exactly one posting
	assert.Equal(t, SchedulerSummary{Owners: 2, Generated: 2}, summary)

	// AND: A second pass has nothing to do
	assert.Equal(t, SchedulerSummary{}, sched.RunNow(context.Background()))
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	s := newTestServer(t)
	seedRule(t, s, "alice", "2025-03-01")

	sched := NewRecurringScheduler(s.handler.Recurring, nil)
	sched.Now = fixedNow
	sched.CheckInterval = time.Hour

	sched.Start()
	sched.Stop()
	sched.Stop()

	entries, err := s.handler.Postings.List(context.Background(), "alice", ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScheduler_Disabled(t *testing.T) {
	s := newTestServer(t)
	seedRule(t, s, "alice", "2025-03-01")

	sched := NewRecurringScheduler(s.handler.Recurring, nil)
	sched.Enabled = false
	sched.Start()
	sched.Stop()

	entries, err := s.handler.Postings.List(context.Background(), "alice", ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScheduler_NextRunTimeFollowsTicker(t *testing.T) {
	s := newTestServer(t)
	sched := NewRecurringScheduler(s.handler.Recurring, nil)
	sched.Now = fixedNow
	sched.CheckInterval = 30 * time.Minute

	// GIVEN: A scheduler that has not started
	assert.True(t, sched.NextRunTime().IsZero())

	// WHEN: It starts
	before := time.Now()
	sched.Start()
	after := time.Now()

	// THEN: The next run is one interval after the start
	next := sched.NextRunTime()
	assert.False(t, next.Before(before.Add(30*time.Minute)))
	assert.False(t, next.After(after.Add(30*time.Minute)))

	// AND: Stopping clears it
	sched.Stop()
	assert.True(t, sched.NextRunTime().IsZero())
}
