package solve

import (
	"context"
	"time"

	"github.com/rokokot/defense-scheduler/internal/solve/sat"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// AdjacencyPair is one candidate adjacency pairing: two defenses sharing an
// evaluator, along with the size of the evaluator group it belongs to (used
// for the per-group upper bound, §4.3 Objective).
type AdjacencyPair struct {
	A, B      int
	GroupSize int
}

// ProgressEvent mirrors §6's "Progress stream": emitted for every improving
// incumbent found during an optimizing solve.
type ProgressEvent struct {
	SolutionIndex  int
	FoundAfterMs   int64
	PlannedCount   int
	AdjacencyScore int
	UpperBound     int
	OptimalityGap  float64
}

// reifyAnd introduces aux <=> (a AND b).
func reifyAnd(s *sat.Solver, a, b sat.Lit) sat.Lit {
	aux := s.NewVar()
	s.AddClause(sat.Negative(aux), a)
	s.AddClause(sat.Negative(aux), b)
	s.AddClause(a.Not(), b.Not(), sat.Positive(aux))
	return sat.Positive(aux)
}

// reifyOr introduces aux <=> OR(lits).
func reifyOr(s *sat.Solver, lits []sat.Lit) sat.Lit {
	aux := s.NewVar()
	clause := make(sat.Clause, 0, len(lits)+1)
	clause = append(clause, sat.Negative(aux))
	for _, l := range lits {
		s.AddClause(l.Not(), sat.Positive(aux))
		clause = append(clause, l)
	}
	s.AddClause(clause...)
	return sat.Positive(aux)
}

// isPlannedVars reifies is_planned[d] := OR over all cells of defense d.
func isPlannedVars(s *sat.Solver, dims Dims) []sat.Lit {
	out := make([]sat.Lit, dims.NumDefenses)
	for d := 0; d < dims.NumDefenses; d++ {
		var cells []sat.Lit
		for r := 0; r < dims.NumRooms; r++ {
			for t := 0; t < dims.NumSlots; t++ {
				cells = append(cells, sat.Positive(dims.varOf(Cell{D: d, R: r, T: t})))
			}
		}
		out[d] = reifyOr(s, cells)
	}
	return out
}

// adjacencyVars reifies one boolean per candidate pair: true iff the pair is
// seated in the same (enabled) room at consecutive slots, in either order.
func adjacencyVars(s *sat.Solver, dims Dims, numEnabledRooms, numRealSlots int, pairs []AdjacencyPair) []sat.Lit {
	out := make([]sat.Lit, len(pairs))
	for i, pair := range pairs {
		var ors []sat.Lit
		for r := 0; r < numEnabledRooms; r++ {
			for t := 0; t < numRealSlots-1; t++ {
				aAtT := sat.Positive(dims.varOf(Cell{D: pair.A, R: r, T: t}))
				bAtT1 := sat.Positive(dims.varOf(Cell{D: pair.B, R: r, T: t + 1}))
				bAtT := sat.Positive(dims.varOf(Cell{D: pair.B, R: r, T: t}))
				aAtT1 := sat.Positive(dims.varOf(Cell{D: pair.A, R: r, T: t + 1}))
				ors = append(ors, reifyAnd(s, aAtT, bAtT1), reifyAnd(s, bAtT, aAtT1))
			}
		}
		if len(ors) == 0 {
			out[i] = sat.Negative(s.NewVar()) // unreachable by construction; keep it false
			continue
		}
		out[i] = reifyOr(s, ors)
	}
	return out
}

// MaximizeResult is the outcome of one of the Maximize* searches.
type MaximizeResult struct {
	Result   *Result
	Value    int
	TimedOut bool
}

// MaximizePlannedCount runs §4.6 step 1: find the maximum number of
// defenses that can be simultaneously planned, honoring the given hard
// constraints (F1–F8, no F9/F10). It streams one ProgressEvent per
// improving incumbent on progress, if non-nil.
func MaximizePlannedCount(ctx context.Context, dims Dims, constraints []*store.Constraint, cfg Config, progress chan<- ProgressEvent) (MaximizeResult, error) {
	started := time.Now()
	cfg = cfg.resolve()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	best := MaximizeResult{}
	idx := 0
	for k := 0; k <= dims.NumDefenses; k++ {
		s := sat.New(dims.numVars())
		s.MaxNodes = cfg.MaxNodes
		if err := compile(s, dims, constraints); err != nil {
			return best, err
		}
		planned := isPlannedVars(s, dims)
		s.AtLeastK(planned, k)

		model, isSAT, err := s.Solve(ctx)
		if err != nil {
			best.TimedOut = true
			return best, classifySolveError(err, ctx)
		}
		if !isSAT {
			break
		}
		idx++
		best = MaximizeResult{Result: resultFromModel(dims, model), Value: k}
		if progress != nil {
			progress <- ProgressEvent{
				SolutionIndex: idx,
				FoundAfterMs:  time.Since(started).Milliseconds(),
				PlannedCount:  k,
				UpperBound:    dims.NumDefenses,
				OptimalityGap: float64(dims.NumDefenses-k) / float64(max(1, dims.NumDefenses)),
			}
		}
	}
	return best, nil
}

// MaximizeAdjacency runs §4.6 step 2's adjacency objective: every defense is
// already required planned via F9 (emitted by the caller's compiler.Compile
// with ModeAdjacencyOptimize); this only maximizes the adjacency-pair count.
// It streams one ProgressEvent per improving incumbent, matching §6.
func MaximizeAdjacency(ctx context.Context, dims Dims, constraints []*store.Constraint, pairs []AdjacencyPair, numEnabledRooms, numRealSlots int, cfg Config, progress chan<- ProgressEvent) (MaximizeResult, error) {
	started := time.Now()
	cfg = cfg.resolve()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	upperBound := adjacencyUpperBound(pairs)

	best := MaximizeResult{}
	idx := 0
	for k := 0; k <= len(pairs); k++ {
		s := sat.New(dims.numVars())
		s.MaxNodes = cfg.MaxNodes
		if err := compile(s, dims, constraints); err != nil {
			return best, err
		}
		adj := adjacencyVars(s, dims, numEnabledRooms, numRealSlots, pairs)
		if k > 0 {
			s.AtLeastK(adj, k)
		}

		model, isSAT, err := s.Solve(ctx)
		if err != nil {
			best.TimedOut = true
			return best, classifySolveError(err, ctx)
		}
		if !isSAT {
			break
		}
		idx++
		best = MaximizeResult{Result: resultFromModel(dims, model), Value: k}
		if progress != nil {
			gap := 0.0
			if upperBound > 0 {
				gap = float64(upperBound-k) / float64(upperBound)
			}
			progress <- ProgressEvent{
				SolutionIndex:  idx,
				FoundAfterMs:   time.Since(started).Milliseconds(),
				PlannedCount:   dims.NumDefenses,
				AdjacencyScore: k,
				UpperBound:     upperBound,
				OptimalityGap:  gap,
			}
		}
	}
	return best, nil
}

// adjacencyUpperBound returns len(pairs), the number of adjacency candidate
// pairs: each pair adds at most one to the adjacency score, so the count
// bounds it from above. The tighter per-evaluator-group bound (the sum over
// groups of min(groupSize-1, end_hour-start_hour-1)) is not computed, and no
// bound constraint is added to the model (see DESIGN.md).
func adjacencyUpperBound(pairs []AdjacencyPair) int {
	bySize := make(map[int]int) // group "key" isn't recoverable from pairs alone, so approximate with pair count
	_ = bySize
	return len(pairs)
}

func resultFromModel(dims Dims, model sat.Model) *Result {
	placed := make(map[Cell]bool)
	for d := 0; d < dims.NumDefenses; d++ {
		for r := 0; r < dims.NumRooms; r++ {
			for t := 0; t < dims.NumSlots; t++ {
				c := Cell{D: d, R: r, T: t}
				if model.Value(dims.varOf(c)) {
					placed[c] = true
				}
			}
		}
	}
	return &Result{SAT: true, Placed: placed}
}

func classifySolveError(err error, ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrSolverTimeout
	}
	return ErrCancellationRequested
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
