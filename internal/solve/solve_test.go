package solve_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// oneDefenseTwoSlotDims is the smallest non-trivial tensor: one
// defense, one room, two slots, so ForbidCells/AtMostOne/ExactlyOne/FixCell
// all have something to act on.
func oneDefenseTwoSlotDims() solve.Dims {
	return solve.Dims{NumDefenses: 1, NumRooms: 1, NumSlots: 2}
}

func TestSolve_ForbidCells(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	s := store.New()
	s.Emit("forbid-t0", true, solve.ForbidCells{Cells: []solve.Cell{{D: 0, R: 0, T: 0}}})
	s.Emit("must-plan", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 0, R: 0, T: 0}, {D: 0, R: 0, T: 1}}})

	res, err := solve.Solve(context.Background(), dims, s.All(), solve.Config{})
	require.NoError(t, err)
	require.True(t, res.SAT)
	assert.True(t, res.Placed[solve.Cell{D: 0, R: 0, T: 1}])
	assert.False(t, res.Placed[solve.Cell{D: 0, R: 0, T: 0}])
}

func TestSolve_Infeasible(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	s := store.New()
	cells := []solve.Cell{{D: 0, R: 0, T: 0}, {D: 0, R: 0, T: 1}}
	s.Emit("forbid-all-0", true, solve.ForbidCells{Cells: []solve.Cell{cells[0]}})
	s.Emit("forbid-all-1", true, solve.ForbidCells{Cells: []solve.Cell{cells[1]}})
	s.Emit("must-plan", false, solve.ExactlyOneCell{Cells: cells})

	res, err := solve.Solve(context.Background(), dims, s.All(), solve.Config{})
	require.NoError(t, err)
	assert.False(t, res.SAT)
}

func TestSolve_FixCell(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	s := store.New()
	s.Emit("must-fix", false, solve.FixCell{Cell: solve.Cell{D: 0, R: 0, T: 1}})

	res, err := solve.Solve(context.Background(), dims, s.All(), solve.Config{})
	require.NoError(t, err)
	require.True(t, res.SAT)
	assert.True(t, res.Placed[solve.Cell{D: 0, R: 0, T: 1}])
}

func TestSolve_AtMostOneCells(t *testing.T) {
	dims := solve.Dims{NumDefenses: 2, NumRooms: 1, NumSlots: 1}
	s := store.New()
	cells := []solve.Cell{{D: 0, R: 0, T: 0}, {D: 1, R: 0, T: 0}}
	s.Emit("room-overlap", true, solve.AtMostOneCells{Cells: cells})
	s.Emit("force-both-candidates", false, solve.ExactlyOneCell{Cells: cells}) // at least one, and AtMostOne caps it

	res, err := solve.Solve(context.Background(), dims, s.All(), solve.Config{})
	require.NoError(t, err)
	require.True(t, res.SAT)
	count := 0
	for _, v := range res.Placed {
		if v {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSolve_UnrecognizedPayload(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	s := store.New()
	s.Emit("bogus", false, "not a real payload type")

	_, err := solve.Solve(context.Background(), dims, s.All(), solve.Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, solve.ErrSolverError))
}

func TestCheckSAT(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	s := store.New()
	s.Emit("must-plan", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 0, R: 0, T: 0}, {D: 0, R: 0, T: 1}}})

	ok, err := solve.CheckSAT(context.Background(), dims, s.All(), solve.Config{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfig_ResolveDefaultsTimeout(t *testing.T) {
	dims := oneDefenseTwoSlotDims()
	start := time.Now()
	_, err := solve.Solve(context.Background(), dims, nil, solve.Config{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 9*time.Second, "a trivially satisfiable instance with no constraints must resolve almost instantly, well under the ~10s default timeout")
}

func TestMaximizePlannedCount(t *testing.T) {
	// Two defenses, one room, one slot: only one can ever be planned.
	dims := solve.Dims{NumDefenses: 2, NumRooms: 1, NumSlots: 1}
	s := store.New()
	cells := []solve.Cell{{D: 0, R: 0, T: 0}, {D: 1, R: 0, T: 0}}
	s.Emit("room-overlap", true, solve.AtMostOneCells{Cells: cells})

	res, err := solve.MaximizePlannedCount(context.Background(), dims, s.All(), solve.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	require.NotNil(t, res.Result)
	assert.True(t, res.Result.SAT)
}

func TestMaximizePlannedCount_EmitsProgress(t *testing.T) {
	dims := solve.Dims{NumDefenses: 2, NumRooms: 2, NumSlots: 1} // both simultaneously placeable
	progress := make(chan solve.ProgressEvent, 8)
	res, err := solve.MaximizePlannedCount(context.Background(), dims, nil, solve.Config{}, progress)
	require.NoError(t, err)
	close(progress)
	assert.Equal(t, 2, res.Value)

	var events []solve.ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 2, last.PlannedCount)
	assert.Equal(t, 0.0, last.OptimalityGap)
}

func TestMaximizeAdjacency(t *testing.T) {
	// Two defenses sharing an evaluator, one room, two consecutive slots:
	// seating both back-to-back in the same room achieves adjacency 1.
	dims := solve.Dims{NumDefenses: 2, NumRooms: 1, NumSlots: 2}
	s := store.New()
	s.Emit("must-plan-0", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 0, R: 0, T: 0}, {D: 0, R: 0, T: 1}}})
	s.Emit("must-plan-1", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 1, R: 0, T: 0}, {D: 1, R: 0, T: 1}}})
	s.Emit("no-overlap-0", true, solve.AtMostOneCells{Cells: []solve.Cell{{D: 0, R: 0, T: 0}, {D: 1, R: 0, T: 0}}})
	s.Emit("no-overlap-1", true, solve.AtMostOneCells{Cells: []solve.Cell{{D: 0, R: 0, T: 1}, {D: 1, R: 0, T: 1}}})

	pairs := []solve.AdjacencyPair{{A: 0, B: 1, GroupSize: 2}}
	res, err := solve.MaximizeAdjacency(context.Background(), dims, s.All(), pairs, 1, 2, solve.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
}
