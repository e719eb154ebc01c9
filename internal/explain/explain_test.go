package explain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokokot/defense-scheduler/internal/explain"
	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// sameCellFixture: two soft constraints forbidding the SAME single cell,
// plus a hard exactly-one over that one cell. Either soft constraint alone
// already conflicts with the hard requirement, so the deletion-based search
// can shrink all the way down to a singleton MUS; correcting it, however,
// requires dropping both (removing just one still leaves a forbid on the
// only cell), so its unique MCS is the full soft set.
func sameCellFixture() (solve.Dims, []*store.Constraint, []*store.Constraint) {
	dims := solve.Dims{NumDefenses: 1, NumRooms: 1, NumSlots: 1}
	s := store.New()
	soft1 := s.Emit("person-unavailable <bob> <0>", true, solve.ForbidCells{Cells: []solve.Cell{{D: 0, R: 0, T: 0}}})
	soft2 := s.Emit("room-unavailable <r1> <0>", true, solve.ForbidCells{Cells: []solve.Cell{{D: 0, R: 0, T: 0}}})
	must := s.Emit("must-plan <0>", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 0, R: 0, T: 0}}})
	return dims, []*store.Constraint{soft1, soft2}, []*store.Constraint{must}
}

// distinctCellsFixture: two soft constraints, each forbidding a different
// one of two cells a hard exactly-one ranges over. Neither soft constraint
// alone is enough to cause UNSAT (the other cell stays free), so the full
// set is the unique MUS, and there are two distinct singleton MCSes — drop
// either one constraint and the other cell satisfies the hard requirement.
func distinctCellsFixture() (solve.Dims, []*store.Constraint, []*store.Constraint) {
	dims := solve.Dims{NumDefenses: 1, NumRooms: 1, NumSlots: 2}
	s := store.New()
	soft1 := s.Emit("person-unavailable <bob> <0>", true, solve.ForbidCells{Cells: []solve.Cell{{D: 0, R: 0, T: 0}}})
	soft2 := s.Emit("person-unavailable <bob> <1>", true, solve.ForbidCells{Cells: []solve.Cell{{D: 0, R: 0, T: 1}}})
	must := s.Emit("must-plan <0>", false, solve.ExactlyOneCell{Cells: []solve.Cell{{D: 0, R: 0, T: 0}, {D: 0, R: 0, T: 1}}})
	return dims, []*store.Constraint{soft1, soft2}, []*store.Constraint{must}
}

func TestComputeMUS_SingleConstraintSuffices(t *testing.T) {
	dims, soft, hard := sameCellFixture()
	mus, err := explain.ComputeMUS(context.Background(), dims, soft, hard, explain.Config{})
	require.NoError(t, err)
	assert.Len(t, mus.Labels, 1, "either soft constraint alone already forbids the only cell, so the minimal core is a singleton")
}

func TestComputeMUS_AllSoftNeeded(t *testing.T) {
	dims, soft, hard := distinctCellsFixture()
	mus, err := explain.ComputeMUS(context.Background(), dims, soft, hard, explain.Config{})
	require.NoError(t, err)
	assert.Len(t, mus.Labels, 2, "dropping either constraint alone leaves the other cell free, so both are needed for the minimal core")
}

func TestEnumerateMCS_FindsBothSingletons(t *testing.T) {
	dims, soft, hard := distinctCellsFixture()
	results, timedOut, err := explain.EnumerateMCS(context.Background(), dims, soft, hard, explain.Config{})
	require.NoError(t, err)
	assert.False(t, timedOut)
	require.Len(t, results, 2)

	var gotLabels []string
	for _, r := range results {
		require.Len(t, r.Labels, 1)
		gotLabels = append(gotLabels, r.Labels[0])
	}
	assert.ElementsMatch(t, []string{"person-unavailable <bob> <0>", "person-unavailable <bob> <1>"}, gotLabels)
}

func TestEnumerateMCS_SameCellNeedsBothDropped(t *testing.T) {
	dims, soft, hard := sameCellFixture()
	results, timedOut, err := explain.EnumerateMCS(context.Background(), dims, soft, hard, explain.Config{})
	require.NoError(t, err)
	assert.False(t, timedOut)
	require.Len(t, results, 1, "removing only one of two same-cell forbids still leaves the cell blocked, so the only correction set is both together")
	assert.ElementsMatch(t, []string{"person-unavailable <bob> <0>", "room-unavailable <r1> <0>"}, results[0].Labels)
}

func TestEnumerateMCS_NoDuplicateLabelSets(t *testing.T) {
	dims, soft, hard := distinctCellsFixture()
	results, _, err := explain.EnumerateMCS(context.Background(), dims, soft, hard, explain.Config{})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range results {
		sig := ""
		for _, l := range r.Labels {
			sig += l + "\x00"
		}
		assert.False(t, seen[sig], "MARCO must not yield the same label set twice")
		seen[sig] = true
	}
}

func TestEnumerateMCS_RespectsMaxCount(t *testing.T) {
	dims, soft, hard := distinctCellsFixture()
	results, _, err := explain.EnumerateMCS(context.Background(), dims, soft, hard, explain.Config{MaxCount: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEnumerateMCS_TraceIsCalled(t *testing.T) {
	dims, soft, hard := distinctCellsFixture()
	var lines []string
	_, _, err := explain.EnumerateMCS(context.Background(), dims, soft, hard, explain.Config{
		Trace: func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lines)
}
