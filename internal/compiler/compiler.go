// Package compiler implements the Model Compiler (C3): given a canonical
// model.Problem and a solve Mode, it emits the F1–F10 constraint families
// of the kernel spec into a labeled store.Store, using the boolean
// placed[d,r,t] tensor (Mode A) uniformly; Mode S (the cumulative-resource
// encoding) is not implemented.
//
// Room-index layout of the tensor, fixed for every compile:
//
//	[0, len(Rooms))                         enabled rooms (the in_room domain)
//	[len(Rooms), len(Rooms)+len(Disabled))  disabled rooms (F7-guarded)
//	len(Rooms)+len(Disabled)                the single phantom extra room (F6)
//
// Slot-index layout:
//
//	[0, T)        the real horizon
//	[T, T+24)     the single phantom extra day (F6)
package compiler

import (
	"fmt"

	"github.com/rokokot/defense-scheduler/internal/model"
	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// Mode selects which of §4.6's solve steps is being compiled for.
type Mode int

const (
	// ModePlaceMax is step 1: no defense is required to be planned; the
	// caller maximizes planned count separately (internal/solve.MaximizePlannedCount).
	ModePlaceMax Mode = iota
	// ModeExplainOne is step 3a-3b: fix already-placed defenses (optionally)
	// and require exactly one specific defense to be planned.
	ModeExplainOne
	// ModeAdjacencyOptimize is step 2: every defense must be planned; the
	// caller maximizes adjacency separately (internal/solve.MaximizeAdjacency).
	ModeAdjacencyOptimize
)

// Options configures one Compile call.
type Options struct {
	// Target is the defense id that must be planned (ModeExplainOne only).
	Target string
	// Fixed maps defense id to a pre-assigned (room, slot), emitted as F10
	// must-fix constraints. Used by ModeExplainOne when the orchestrator's
	// "fix placed defenses" toggle is enabled (§4.6 step 3a).
	Fixed map[string]model.Assignment
}

// Compiled is the result of one Compile call: the labeled store plus the
// tensor dimensions needed to interpret it.
type Compiled struct {
	Store *store.Store
	Dims  solve.Dims
	// AdjacencyPairs lists every unordered pair of defense indices sharing
	// at least one evaluator, the candidate set for the adjacency objective
	// (§4.3 Objective).
	AdjacencyPairs []solve.AdjacencyPair
}

// Layout describes how problem rooms/slots map onto the placed[d,r,t]
// tensor's room/slot indices; exported so internal/solve (objective
// reification) and internal/workflow/internal/format (mapping a solved
// cell back to a room name / slot) can share one source of truth.
type Layout struct {
	NumEnabled  int
	NumDisabled int
	ExtraRoom   int // index of the phantom room
	ExtraDayAt  int // first slot of the phantom day (== T)
	NumRoomsTot int
	NumSlotsTot int
}

type layout = Layout

// NewLayout computes the tensor layout for problem p.
func NewLayout(p *model.Problem) Layout {
	l := Layout{
		NumEnabled:  len(p.Rooms),
		NumDisabled: len(p.Disabled),
		ExtraDayAt:  p.T,
	}
	l.ExtraRoom = l.NumEnabled + l.NumDisabled
	l.NumRoomsTot = l.ExtraRoom + 1
	l.NumSlotsTot = p.T + 24
	return l
}

func newLayout(p *model.Problem) layout { return NewLayout(p) }

// RoomName resolves a tensor room index back to a display name, given the
// originating problem.
func (l Layout) RoomName(p *model.Problem, ri int) string {
	switch {
	case ri < l.NumEnabled:
		return p.Rooms[ri].Name
	case ri < l.NumEnabled+l.NumDisabled:
		return p.Disabled[ri-l.NumEnabled].Name
	default:
		return "room-extra-1"
	}
}

// IsExtraRoom reports whether ri is the phantom extra-room column.
func (l Layout) IsExtraRoom(ri int) bool { return ri == l.ExtraRoom }

// IsExtraDay reports whether slot t falls in the phantom extra day.
func (l Layout) IsExtraDay(t int) bool { return t >= l.ExtraDayAt }

// Compile emits F1–F10 for the given problem and mode.
func Compile(p *model.Problem, mode Mode, opts Options) (*Compiled, error) {
	l := newLayout(p)
	s := store.New()
	dims := solve.Dims{NumDefenses: len(p.Defenses), NumRooms: l.NumRoomsTot, NumSlots: l.NumSlotsTot}

	defenseIndex := make(map[string]int, len(p.Defenses))
	for i, d := range p.Defenses {
		defenseIndex[d.ID] = i
	}

	emitF1(s, p, l)
	emitF2(s, p, l)
	emitF3(s, p, l)
	emitF4(s, p, l)
	emitF5(s, p, l)
	emitF6(s, p, l)
	emitF7(s, p, l)
	emitF8(s, p, l)

	if mode == ModeExplainOne {
		targetIdx, ok := defenseIndex[opts.Target]
		if !ok {
			return nil, fmt.Errorf("compiler: unknown target defense %q", opts.Target)
		}
		emitF9(s, l, targetIdx)
	} else if mode == ModeAdjacencyOptimize {
		for d := range p.Defenses {
			emitF9(s, l, d)
		}
	}

	if mode == ModeExplainOne {
		for id, a := range opts.Fixed {
			idx, ok := defenseIndex[id]
			if !ok {
				return nil, fmt.Errorf("compiler: unknown fixed defense %q", id)
			}
			ri := p.RoomIndex(a.Room)
			if ri < 0 {
				return nil, fmt.Errorf("compiler: must-fix references non-enabled room %q", a.Room)
			}
			emitF10(s, idx, ri, a.Slot, id, a.Room)
		}
	}

	return &Compiled{Store: s, Dims: dims, AdjacencyPairs: adjacencyPairs(p)}, nil
}

func allCellsForDT(l layout, d, t int) []solve.Cell {
	cells := make([]solve.Cell, 0, l.NumRoomsTot)
	for r := 0; r < l.NumRoomsTot; r++ {
		cells = append(cells, solve.Cell{D: d, R: r, T: t})
	}
	return cells
}

// F1 — evaluator availability.
func emitF1(s *store.Store, p *model.Problem, l layout) {
	for _, u := range p.Unavail {
		if u.Kind != model.KindPerson {
			continue
		}
		for _, di := range p.EvaluatorDefenses(u.Subject) {
			for t := u.Start; t < u.End && t < p.T; t++ {
				label := fmt.Sprintf("person-unavailable <%s> <%d>", u.Subject, t)
				s.Emit(label, true, solve.ForbidCells{Cells: allCellsForDT(l, di, t)})
			}
		}
	}
}

// F2 — evaluator no-overlap.
func emitF2(s *store.Store, p *model.Problem, l layout) {
	for _, person := range p.People {
		defenses := p.EvaluatorDefenses(person)
		if len(defenses) < 2 {
			continue
		}
		for t := 0; t < p.T; t++ {
			var cells []solve.Cell
			for _, di := range defenses {
				cells = append(cells, allCellsForDT(l, di, t)...)
			}
			label := fmt.Sprintf("person-overlap <%s> <%d>", person, t)
			s.Emit(label, true, solve.AtMostOneCells{Cells: cells})
		}
	}
}

// F3 — room availability.
func emitF3(s *store.Store, p *model.Problem, l layout) {
	for _, u := range p.Unavail {
		if u.Kind != model.KindRoom {
			continue
		}
		ri := p.RoomIndex(u.Subject)
		if ri < 0 {
			continue // not an enabled room; F7 already guards disabled ones entirely
		}
		for t := u.Start; t < u.End && t < p.T; t++ {
			var cells []solve.Cell
			for d := range p.Defenses {
				cells = append(cells, solve.Cell{D: d, R: ri, T: t})
			}
			label := fmt.Sprintf("room-unavailable <%s> <%d>", u.Subject, t)
			s.Emit(label, true, solve.ForbidCells{Cells: cells})
		}
	}
}

// F4 — room no-overlap.
func emitF4(s *store.Store, p *model.Problem, l layout) {
	for ri, room := range p.Rooms {
		for t := 0; t < p.T; t++ {
			var cells []solve.Cell
			for d := range p.Defenses {
				cells = append(cells, solve.Cell{D: d, R: ri, T: t})
			}
			label := fmt.Sprintf("room-overlap <%s> <%d>", room.Name, t)
			s.Emit(label, true, solve.AtMostOneCells{Cells: cells})
		}
	}
}

// F5 — legal hour (hard background).
func emitF5(s *store.Store, p *model.Problem, l layout) {
	for t := 0; t < p.T; t++ {
		if p.Timeslot.IsLegal(t) {
			continue
		}
		var cells []solve.Cell
		for d := range p.Defenses {
			cells = append(cells, allCellsForDT(l, d, t)...)
		}
		label := fmt.Sprintf("timeslot-illegal <%d>", t)
		s.Emit(label, false, solve.ForbidCells{Cells: cells})
	}
}

// F6 — extra-room and extra-day guards.
func emitF6(s *store.Store, p *model.Problem, l layout) {
	// extra-room: forbidden across the real horizon (the extra-day branch
	// below separately forbids every (d,r,t) for t in the phantom day,
	// which already covers the extra-room column there too).
	var roomCells []solve.Cell
	for d := range p.Defenses {
		for t := 0; t < p.T; t++ {
			roomCells = append(roomCells, solve.Cell{D: d, R: l.ExtraRoom, T: t})
		}
	}
	s.Emit("extra-room <room-extra-1>", true, solve.ForbidCells{Cells: roomCells})

	for t := l.ExtraDayAt; t < l.NumSlotsTot; t++ {
		var cells []solve.Cell
		for d := range p.Defenses {
			cells = append(cells, allCellsForDT(l, d, t)...)
		}
		label := fmt.Sprintf("extra-day <%d>", t)
		s.Emit(label, true, solve.ForbidCells{Cells: cells})
	}
}

// F7 — disabled-room guard.
func emitF7(s *store.Store, p *model.Problem, l layout) {
	for k, room := range p.Disabled {
		ri := l.NumEnabled + k
		var cells []solve.Cell
		for d := range p.Defenses {
			for t := 0; t < p.T; t++ {
				cells = append(cells, solve.Cell{D: d, R: ri, T: t})
			}
		}
		label := fmt.Sprintf("enable-room <%s>", room.Name)
		s.Emit(label, true, solve.ForbidCells{Cells: cells})
	}
}

// F8 — consistency (hard).
func emitF8(s *store.Store, p *model.Problem, l layout) {
	for d := range p.Defenses {
		label := fmt.Sprintf("consistency <%d>", d)
		s.Emit(label, false, solve.AtMostOneCells{Cells: allCellsAcrossDims(l, d)})
	}
}

func allCellsAcrossDims(l layout, d int) []solve.Cell {
	cells := make([]solve.Cell, 0, l.NumRoomsTot*l.NumSlotsTot)
	for r := 0; r < l.NumRoomsTot; r++ {
		for t := 0; t < l.NumSlotsTot; t++ {
			cells = append(cells, solve.Cell{D: d, R: r, T: t})
		}
	}
	return cells
}

// F9 — must-plan (hard).
func emitF9(s *store.Store, l layout, d int) {
	label := fmt.Sprintf("must-plan <%d>", d)
	s.Emit(label, false, solve.ExactlyOneCell{Cells: allCellsAcrossDims(l, d)})
}

// F10 — must-fix (hard).
func emitF10(s *store.Store, defenseIdx, roomIdx, slot int, defenseID, roomName string) {
	label := fmt.Sprintf("must-fix <%s> <%s> <%d>", defenseID, roomName, slot)
	s.Emit(label, false, solve.FixCell{Cell: solve.Cell{D: defenseIdx, R: roomIdx, T: slot}})
}

func adjacencyPairs(p *model.Problem) []solve.AdjacencyPair {
	groups := make(map[string][]int)
	for i, d := range p.Defenses {
		for _, e := range d.Evaluators {
			groups[e] = append(groups[e], i)
		}
	}
	seen := make(map[[2]int]int)
	for _, members := range groups {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if a > b {
					a, b = b, a
				}
				if seen[[2]int{a, b}] < len(members) {
					seen[[2]int{a, b}] = len(members)
				}
			}
		}
	}
	out := make([]solve.AdjacencyPair, 0, len(seen))
	for k, groupSize := range seen {
		out = append(out, solve.AdjacencyPair{A: k[0], B: k[1], GroupSize: groupSize})
	}
	return out
}
