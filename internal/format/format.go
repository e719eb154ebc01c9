// Package format shapes the kernel's outbound payloads per §6: the
// schedule payload, the per-defense explanation payload (MUS/MCS grouped
// by constraint category), the progress-stream JSON, and the repair
// vocabulary strings handed to the external repair applicator.
//
// Float formatting follows jsonenc's append-style approach
// (github.com/joeycumines/go-utilpkg/jsonenc.AppendFloat64, the same
// -1-precision/shortest-round-trip corpus encoding/json itself uses) and
// optimality_gap is rounded for human-facing display with
// github.com/joeycumines/floater's half-to-even big.Rat rounding.
package format

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"

	"github.com/joeycumines/floater"
	"github.com/joeycumines/go-utilpkg/jsonenc"

	"github.com/rokokot/defense-scheduler/internal/model"
	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/workflow"
)

const timestampLayout = "2006-01-02 15:04:05"

// Placement is one outbound schedule entry (§6's "Outbound schedule
// payload").
type Placement struct {
	DefenseID      string `json:"defense_id"`
	RoomName       string `json:"room_name"`
	StartSlot      int    `json:"start_slot"`
	StartTimestamp string `json:"start_timestamp"`
	Moved          bool   `json:"moved,omitempty"`
}

// SchedulePayload is §6's outbound schedule payload.
type SchedulePayload struct {
	Placements  []Placement `json:"placements"`
	Unscheduled []string    `json:"unscheduled,omitempty"`
}

// Schedule renders a workflow.SolveResult into the outbound schedule
// payload, in deterministic (sorted by defense id) order.
func Schedule(p *model.Problem, res *workflow.SolveResult) SchedulePayload {
	out := SchedulePayload{Unscheduled: append([]string(nil), res.Unscheduled...)}
	sort.Strings(out.Unscheduled)

	ids := make([]string, 0, len(res.Schedule))
	for id := range res.Schedule {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := res.Schedule[id]
		out.Placements = append(out.Placements, Placement{
			DefenseID:      id,
			RoomName:       a.Room,
			StartSlot:      a.Slot,
			StartTimestamp: p.Timeslot.Timestamp(a.Slot).Format(timestampLayout),
		})
	}
	return out
}

// ExplainDelta renders a successful workflow.Explanation (one where the
// target turned out placeable) into the same shape as Schedule, tagging
// every moved defense per the decided Open Question on reporting migrated
// placements.
func ExplainDelta(p *model.Problem, e *workflow.Explanation) SchedulePayload {
	ids := make([]string, 0, len(e.Schedule))
	for id := range e.Schedule {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out SchedulePayload
	for _, id := range ids {
		a := e.Schedule[id]
		out.Placements = append(out.Placements, Placement{
			DefenseID:      id,
			RoomName:       a.Room,
			StartSlot:      a.Slot,
			StartTimestamp: p.Timeslot.Timestamp(a.Slot).Format(timestampLayout),
			Moved:          e.Moved[id],
		})
	}
	return out
}

// Categories is one MUS or MCS rendered per §6: keyed by constraint
// category, each value either map[string][]int (entity -> sorted slots,
// for the four per-slot categories) or []string (sorted names, for the
// room/day categories).
type Categories map[string]any

var (
	reSlotEntity = regexp.MustCompile(`^(person-unavailable|person-overlap|room-unavailable|room-overlap) <(.+)> <(\d+)>$`)
	reNameOnly   = regexp.MustCompile(`^(enable-room|extra-room) <(.+)>$`)
	reSlotOnly   = regexp.MustCompile(`^(extra-day) <(\d+)>$`)
)

// CategorizeLabels groups a MUS/MCS label set into the §6 output shape.
// Labels not matching any of the seven categorized families (for example
// must-plan or consistency labels) are ignored.
func CategorizeLabels(labels []string) Categories {
	perSlot := make(map[string]map[string][]int)
	names := make(map[string]map[string]bool)

	for _, label := range labels {
		switch {
		case reSlotEntity.MatchString(label):
			m := reSlotEntity.FindStringSubmatch(label)
			cat, entity := m[1], m[2]
			slot, _ := strconv.Atoi(m[3])
			if perSlot[cat] == nil {
				perSlot[cat] = make(map[string][]int)
			}
			perSlot[cat][entity] = append(perSlot[cat][entity], slot)
		case reNameOnly.MatchString(label):
			m := reNameOnly.FindStringSubmatch(label)
			cat, name := m[1], m[2]
			if names[cat] == nil {
				names[cat] = make(map[string]bool)
			}
			names[cat][name] = true
		case reSlotOnly.MatchString(label):
			m := reSlotOnly.FindStringSubmatch(label)
			cat := m[1]
			if names[cat] == nil {
				names[cat] = make(map[string]bool)
			}
			names[cat][m[2]] = true
		}
	}

	out := make(Categories, len(perSlot)+len(names))
	for cat, byEntity := range perSlot {
		rendered := make(map[string][]int, len(byEntity))
		for entity, slots := range byEntity {
			sort.Ints(slots)
			rendered[entity] = slots
		}
		out[cat] = rendered
	}
	for cat, set := range names {
		list := make([]string, 0, len(set))
		for n := range set {
			list = append(list, n)
		}
		sort.Strings(list)
		out[cat] = list
	}
	return out
}

// ExplanationPayload is §6's outbound explanation payload for one blocked
// defense.
type ExplanationPayload struct {
	DefenseID string       `json:"defense_id"`
	Success   bool         `json:"success"`
	MUS       Categories   `json:"mus,omitempty"`
	MCS       []Categories `json:"mcs,omitempty"`
	TimedOut  bool         `json:"timed_out,omitempty"`
}

// Explain renders a workflow.Explanation into the outbound payload.
func Explain(e *workflow.Explanation) ExplanationPayload {
	out := ExplanationPayload{DefenseID: e.Target, Success: e.Success, TimedOut: e.TimedOut}
	if e.Success {
		return out
	}
	out.MUS = CategorizeLabels(e.MUS)
	out.MCS = make([]Categories, len(e.MCS))
	for i, m := range e.MCS {
		out.MCS[i] = CategorizeLabels(m.Labels)
	}
	return out
}

// RepairStrings renders one Categories value (always an MCS, per §6 — the
// MUS is informational only) into the repair-action grammar strings the
// external applicator (internal/dataset.ApplyRepair) consumes. Only the
// four categories MCS enumeration ever selects on
// (person-unavailable, extra-room, enable-room, extra-day) have a grammar
// line; any other key is ignored.
func RepairStrings(cat Categories, p *model.Problem) []string {
	var out []string

	if byEntity, ok := cat["person-unavailable"].(map[string][]int); ok {
		var entities []string
		for e := range byEntity {
			entities = append(entities, e)
		}
		sort.Strings(entities)
		for _, e := range entities {
			for _, slot := range byEntity[e] {
				out = append(out, fmt.Sprintf("person-unavailable <%s> <%s>", e, p.Timeslot.Timestamp(slot).Format(timestampLayout)))
			}
		}
	}
	if list, ok := cat["extra-room"].([]string); ok {
		for _, n := range list {
			out = append(out, fmt.Sprintf("extra-room <%s>", n))
		}
	}
	if list, ok := cat["enable-room"].([]string); ok {
		for _, n := range list {
			out = append(out, fmt.Sprintf("enable-room <%s>", n))
		}
	}
	if list, ok := cat["extra-day"].([]string); ok {
		for _, s := range list {
			slot, _ := strconv.Atoi(s)
			out = append(out, fmt.Sprintf("extra-day <%s>", p.Timeslot.Timestamp(slot).Format(timestampLayout)))
		}
	}
	return out
}

// RoundGap rounds gap to prec decimal places using half-to-even rounding
// over an exact big.Rat representation, matching floater's RoundRat
// contract, for human-facing optimality_gap display.
func RoundGap(gap float64, prec int) float64 {
	r := new(big.Rat).SetFloat64(gap)
	if r == nil {
		return gap
	}
	f, _ := floater.RoundRat(nil, r, prec).Float64()
	return f
}

// ProgressEventJSON renders one solve.ProgressEvent as a single-line JSON
// object matching §6's progress-stream shape, using jsonenc's append-style
// float encoding.
func ProgressEventJSON(e solve.ProgressEvent) []byte {
	buf := make([]byte, 0, 160)
	buf = append(buf, `{"solution_index":`...)
	buf = strconv.AppendInt(buf, int64(e.SolutionIndex), 10)
	buf = append(buf, `,"found_after_ms":`...)
	buf = strconv.AppendInt(buf, e.FoundAfterMs, 10)
	buf = append(buf, `,"planned_count":`...)
	buf = strconv.AppendInt(buf, int64(e.PlannedCount), 10)
	buf = append(buf, `,"adjacency_score":`...)
	buf = strconv.AppendInt(buf, int64(e.AdjacencyScore), 10)
	buf = append(buf, `,"upper_bound":`...)
	buf = strconv.AppendInt(buf, int64(e.UpperBound), 10)
	buf = append(buf, `,"optimality_gap":`...)
	buf = jsonenc.AppendFloat64(buf, RoundGap(e.OptimalityGap, 4))
	buf = append(buf, '}')
	return buf
}
