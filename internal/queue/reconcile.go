package queue

import (
	"fmt"
	"sort"
	"time"
)

// Action is what a plan item does to a persisted record
type Action string

const (
	ActionCreate     Action = "create"
	ActionReactivate Action = "reactivate"
	ActionTouch      Action = "touch"
	ActionDeactivate Action = "deactivate"
)

// PlanItem carries the record as it must look after the item is applied
type PlanItem struct {
	Action Action `json:"action"`
	Record Record `json:"record"`
}

// Plan is the ordered set of changes a sync applies
type Plan struct {
	Items  []PlanItem `json:"items"`
	Errors []string   `json:"errors"`
}

// Defaults are the settings given to a queue seen for the first time
type Defaults struct {
	SLAThresholdSeconds     int
	WarningThresholdSeconds int
	IsMonitored             bool
}

// Engine diffs live queues against persisted records. It has no state
// beyond its defaults and performs no I/O.
type Engine struct {
	Defaults Defaults
}

// NewEngine creates an engine, rejecting defaults that would produce
// invalid records.
func NewEngine(d Defaults) (*Engine, error) {
	if err := validateThresholds(d.SLAThresholdSeconds, d.WarningThresholdSeconds); err != nil {
		return nil, err
	}
	return &Engine{Defaults: d}, nil
}

// Diff computes the plan that makes persisted match live as of now.
// Queue numbers are compared byte for byte.
func (e *Engine) Diff(live []LiveQueue, persisted []Record, now time.Time) Plan {
	plan := Plan{Items: []PlanItem{}, Errors: []string{}}

	seen := make(map[string]struct{}, len(live))
	for i, lq := range live {
		if lq.QueueNumber == "" {
			plan.Errors = append(plan.Errors, fmt.Sprintf("live queue #%d reported without a queue number, ignored", i+1))
			continue
		}
		seen[lq.QueueNumber] = struct{}{}
	}

	stored := make(map[string]Record, len(persisted))
	for _, rec := range persisted {
		stored[rec.QueueNumber] = rec
	}

	for number := range seen {
		rec, ok := stored[number]
		switch {
		case !ok:
			plan.Items = append(plan.Items, PlanItem{Action: ActionCreate, Record: e.newRecord(number, now)})
		case !rec.IsActive:
			rec.IsActive = true
			rec.LastSeenAt = now
			plan.Items = append(plan.Items, PlanItem{Action: ActionReactivate, Record: rec})
		default:
			rec.LastSeenAt = now
			plan.Items = append(plan.Items, PlanItem{Action: ActionTouch, Record: rec})
		}
	}

	for number, rec := range stored {
		if _, ok := seen[number]; ok || !rec.IsActive {
			continue
		}
		rec.IsActive = false
		plan.Items = append(plan.Items, PlanItem{Action: ActionDeactivate, Record: rec})
	}

	sort.Slice(plan.Items, func(i, j int) bool {
		return plan.Items[i].Record.QueueNumber < plan.Items[j].Record.QueueNumber
	})
	return plan
}

func (e *Engine) newRecord(number string, now time.Time) Record {
	return Record{
		QueueNumber:             number,
		DisplayName:             number,
		SLAThresholdSeconds:     e.Defaults.SLAThresholdSeconds,
		WarningThresholdSeconds: e.Defaults.WarningThresholdSeconds,
		IsMonitored:             e.Defaults.IsMonitored,
		IsActive:                true,
		LastSeenAt:              now,
	}
}

// Summary counts the plan items the way SyncResult reports them.
// A touched record counts as unchanged.
func (p Plan) Summary() SyncResult {
	res := SyncResult{Errors: append([]string{}, p.Errors...)}
	for _, item := range p.Items {
		switch item.Action {
		case ActionCreate:
			res.Created++
		case ActionReactivate:
			res.Reactivated++
		case ActionTouch:
			res.Unchanged++
		case ActionDeactivate:
			res.Deactivated++
		}
	}
	return res
}

// Count returns the number of items with the given action
func (p Plan) Count(a Action) int {
	n := 0
	for _, item := range p.Items {
		if item.Action == a {
			n++
		}
	}
	return n
}
