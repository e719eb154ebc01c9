package sat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokokot/defense-scheduler/internal/solve/sat"
)

func TestSolve_UnitPropagationSatisfiable(t *testing.T) {
	s := sat.New(2)
	a, b := sat.Var(0), sat.Var(1)
	s.AddUnit(sat.Positive(a))
	s.AddClause(sat.Negative(a), sat.Positive(b)) // a -> b

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, model.Value(a))
	assert.True(t, model.Value(b))
}

func TestSolve_Unsatisfiable(t *testing.T) {
	s := sat.New(1)
	v := sat.Var(0)
	s.AddUnit(sat.Positive(v))
	s.AddUnit(sat.Negative(v))

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, model)
}

func TestSolve_MaxNodesCancels(t *testing.T) {
	// A handful of independent free variables with no clauses tying them
	// together still explores a tree if MaxNodes is pinned low enough.
	s := sat.New(20)
	s.MaxNodes = 1
	_, ok, err := s.Solve(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	var ce *sat.ErrCanceled
	assert.ErrorAs(t, err, &ce)
}

func TestSolve_ContextCancellation(t *testing.T) {
	// The context is canceled before Solve starts, on a one-variable
	// instance. The solver checks ctx only every 1024 nodes, so such an
	// instance may finish before any check; the deterministic cancellation
	// path is covered by TestSolve_MaxNodesCancels.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := sat.New(1)
	_, ok, err := s.Solve(ctx)
	// a trivially small instance may resolve before the first cancellation
	// check; only assert the documented contract when it doesn't.
	if err != nil {
		var ce *sat.ErrCanceled
		assert.ErrorAs(t, err, &ce)
		assert.False(t, ok)
	}
}

func TestAtMostOne(t *testing.T) {
	s := sat.New(3)
	lits := []sat.Lit{sat.Positive(0), sat.Positive(1), sat.Positive(2)}
	s.AtMostOne(lits)
	s.AddClause(lits...) // also require at least one true

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	count := 0
	for _, l := range lits {
		if model.Value(l.Var) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAtMostK(t *testing.T) {
	s := sat.New(5)
	lits := []sat.Lit{sat.Positive(0), sat.Positive(1), sat.Positive(2), sat.Positive(3), sat.Positive(4)}
	s.AtMostK(lits, 2)
	s.AtLeastK(lits, 2) // force exactly 2

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	count := 0
	for _, l := range lits {
		if model.Value(l.Var) {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestAtMostK_VacuousWhenKExceedsN(t *testing.T) {
	s := sat.New(2)
	lits := []sat.Lit{sat.Positive(0), sat.Positive(1)}
	s.AtMostK(lits, 5) // no-op; every literal may be true
	s.AddClause(lits...)

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, model.Value(0) || model.Value(1))
}

func TestExactlyOne(t *testing.T) {
	s := sat.New(4)
	lits := []sat.Lit{sat.Positive(0), sat.Positive(1), sat.Positive(2), sat.Positive(3)}
	s.ExactlyOne(lits)

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	count := 0
	for _, l := range lits {
		if model.Value(l.Var) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAtLeastK_UnsatisfiableWhenKExceedsN(t *testing.T) {
	s := sat.New(2)
	lits := []sat.Lit{sat.Positive(0), sat.Positive(1)}
	s.AtLeastK(lits, 3)

	_, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLit_Not(t *testing.T) {
	v := sat.Var(0)
	assert.Equal(t, sat.Negative(v), sat.Positive(v).Not())
	assert.Equal(t, sat.Positive(v), sat.Negative(v).Not())
}

func TestNewVar_ExtendsUsableRange(t *testing.T) {
	s := sat.New(1)
	extra := s.NewVar()
	s.AddUnit(sat.Positive(extra))

	model, ok, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, model.Value(extra))
}
