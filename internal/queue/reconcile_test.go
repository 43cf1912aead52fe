package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesync/internal/apperr"
)

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Defaults{SLAThresholdSeconds: 20, WarningThresholdSeconds: 15, IsMonitored: true})
	require.NoError(t, err)
	return e
}

func live(numbers ...string) []LiveQueue {
	out := make([]LiveQueue, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, LiveQueue{QueueNumber: n, Strategy: "ringall"})
	}
	return out
}

// applyInMemory mimics what the repository does with a plan
func applyInMemory(persisted []Record, plan Plan) []Record {
	byNumber := make(map[string]Record, len(persisted))
	for _, r := range persisted {
		byNumber[r.QueueNumber] = r
	}
	for _, item := range plan.Items {
		byNumber[item.Record.QueueNumber] = item.Record
	}
	out := make([]Record, 0, len(byNumber))
	for _, r := range byNumber {
		out = append(out, r)
	}
	return out
}

func TestDiffScenario(t *testing.T) {
	e := testEngine(t)
	persisted := []Record{
		{QueueNumber: "601", DisplayName: "Sales", SLAThresholdSeconds: 60, WarningThresholdSeconds: 45, IsActive: true, LastSeenAt: t0},
		{QueueNumber: "603", DisplayName: "Support", SLAThresholdSeconds: 30, WarningThresholdSeconds: 20, IsActive: true, LastSeenAt: t0},
	}

	plan := e.Diff(live("601", "602"), persisted, t1)

	require.Len(t, plan.Items, 3)

	touch := plan.Items[0]
	assert.Equal(t, ActionTouch, touch.Action)
	assert.Equal(t, "601", touch.Record.QueueNumber)
	assert.Equal(t, "Sales", touch.Record.DisplayName)
	assert.Equal(t, 60, touch.Record.SLAThresholdSeconds)
	assert.Equal(t, t1, touch.Record.LastSeenAt)
	assert.True(t, touch.Record.IsActive)

	create := plan.Items[1]
	assert.Equal(t, ActionCreate, create.Action)
	assert.Equal(t, "602", create.Record.QueueNumber)
	assert.Equal(t, "602", create.Record.DisplayName)
	assert.Equal(t, 20, create.Record.SLAThresholdSeconds)
	assert.Equal(t, 15, create.Record.WarningThresholdSeconds)
	assert.True(t, create.Record.IsActive)
	assert.True(t, create.Record.IsMonitored)
	assert.Equal(t, t1, create.Record.LastSeenAt)

	deact := plan.Items[2]
	assert.Equal(t, ActionDeactivate, deact.Action)
	assert.Equal(t, "603", deact.Record.QueueNumber)
	assert.False(t, deact.Record.IsActive)
	assert.Equal(t, t0, deact.Record.LastSeenAt, "deactivation keeps the last time the queue was seen")

	res := plan.Summary()
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Reactivated)
	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Empty(t, res.Errors)
}

func TestDiffIsDeterministic(t *testing.T) {
	e := testEngine(t)
	persisted := []Record{
		{QueueNumber: "700", IsActive: true},
		{QueueNumber: "701", IsActive: false},
		{QueueNumber: "702", IsActive: true},
		{QueueNumber: "703", IsActive: false},
	}
	in := live("705", "701", "700", "704")

	first := e.Diff(in, persisted, t1)
	second := e.Diff(in, persisted, t1)
	assert.Equal(t, first, second)

	// inputs are not mutated
	assert.False(t, persisted[1].IsActive)
	assert.True(t, persisted[2].IsActive)
}

func TestDiffInactiveAbsentIsNoop(t *testing.T) {
	e := testEngine(t)
	plan := e.Diff(nil, []Record{{QueueNumber: "650", IsActive: false}}, t1)
	assert.Empty(t, plan.Items)
	assert.Empty(t, plan.Errors)
}

func TestDiffEmptyLiveDeactivatesEverything(t *testing.T) {
	e := testEngine(t)
	persisted := []Record{
		{QueueNumber: "601", IsActive: true},
		{QueueNumber: "602", IsActive: true},
		{QueueNumber: "603", IsActive: true},
	}

	plan := e.Diff([]LiveQueue{}, persisted, t1)

	assert.Equal(t, 3, plan.Count(ActionDeactivate))
	assert.Equal(t, 0, plan.Count(ActionCreate))
	assert.Len(t, plan.Items, 3)
}

func TestDiffSecondRunCreatesNothing(t *testing.T) {
	e := testEngine(t)
	in := live("601", "602", "603")

	first := e.Diff(in, nil, t0)
	require.Equal(t, 3, first.Count(ActionCreate))

	second := e.Diff(in, applyInMemory(nil, first), t1)
	assert.Equal(t, 0, second.Count(ActionCreate))
	assert.Equal(t, 3, second.Count(ActionTouch))
	assert.Equal(t, 3, second.Summary().Unchanged)
}

func TestDiffReactivationKeepsAdministratorFields(t *testing.T) {
	e := testEngine(t)
	persisted := []Record{{
		QueueNumber: "610", DisplayName: "Billing", SLAThresholdSeconds: 90,
		WarningThresholdSeconds: 60, IsMonitored: false, IsActive: true, LastSeenAt: t0,
	}}

	gone := e.Diff(nil, persisted, t0.Add(time.Minute))
	require.Equal(t, 1, gone.Count(ActionDeactivate))
	afterGone := applyInMemory(persisted, gone)

	back := e.Diff(live("610"), afterGone, t1)
	require.Len(t, back.Items, 1)
	item := back.Items[0]
	assert.Equal(t, ActionReactivate, item.Action)
	assert.True(t, item.Record.IsActive)
	assert.Equal(t, t1, item.Record.LastSeenAt)
	assert.Equal(t, "Billing", item.Record.DisplayName)
	assert.Equal(t, 90, item.Record.SLAThresholdSeconds)
	assert.Equal(t, 60, item.Record.WarningThresholdSeconds)
	assert.False(t, item.Record.IsMonitored)
	assert.Equal(t, 1, back.Summary().Reactivated)
}

func TestDiffMatchesCaseSensitively(t *testing.T) {
	e := testEngine(t)
	persisted := []Record{{QueueNumber: "sales", IsActive: true}}

	plan := e.Diff(live("Sales", " sales"), persisted, t1)

	assert.Equal(t, 2, plan.Count(ActionCreate))
	assert.Equal(t, 1, plan.Count(ActionDeactivate))
}

func TestDiffCollapsesDuplicatesAndReportsBlankNumbers(t *testing.T) {
	e := testEngine(t)

	plan := e.Diff(live("601", "601", ""), nil, t1)

	assert.Equal(t, 1, plan.Count(ActionCreate))
	require.Len(t, plan.Errors, 1)
	assert.Contains(t, plan.Errors[0], "#3")
	assert.Equal(t, plan.Errors, plan.Summary().Errors)
}

func TestNewEngineRejectsInvalidDefaults(t *testing.T) {
	_, err := NewEngine(Defaults{SLAThresholdSeconds: 10, WarningThresholdSeconds: 11})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
