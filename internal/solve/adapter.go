// Package solve implements the CP Solver Adapter (C4): it translates the
// Model Compiler's labeled constraints over the placed[d,r,t] boolean
// tensor into a internal/solve/sat instance, solves it, and maps the result
// back onto a schedule. See DESIGN.md for why the backend is a hand-rolled
// DPLL solver rather than a real CP-SAT binding. Only Mode A (the boolean
// tensor) is implemented; Mode S (the cumulative-resource encoding) is not.
package solve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rokokot/defense-scheduler/internal/solve/sat"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// Cell addresses one entry of the placed[d, r, t] tensor. D indexes
// defenses, R indexes rooms (enabled rooms first, then disabled rooms, then
// the phantom extra room, per F6/F7), T indexes slots (horizon slots first, then the phantom
// extra-day slots, per F6).
type Cell struct {
	D, R, T int
}

// Payload variants a *store.Constraint may carry, produced by
// internal/compiler and interpreted here.
type (
	// ForbidCells forces every listed cell to false (F1, F3, F5, F6, F7).
	ForbidCells struct{ Cells []Cell }
	// AtMostOneCells forces at most one of the listed cells true (F2, F4, F8).
	AtMostOneCells struct{ Cells []Cell }
	// ExactlyOneCell forces exactly one of the listed cells true (F9).
	ExactlyOneCell struct{ Cells []Cell }
	// FixCell forces one specific cell true (F10).
	FixCell struct{ Cell Cell }
)

// Dims describes the shape of the placed[d,r,t] tensor for one compile.
type Dims struct {
	NumDefenses int
	NumRooms    int // R + R_extra
	NumSlots    int // T + 24
}

func (d Dims) varOf(c Cell) sat.Var {
	return sat.Var(c.D*d.NumRooms*d.NumSlots + c.R*d.NumSlots + c.T)
}

func (d Dims) numVars() int { return d.NumDefenses * d.NumRooms * d.NumSlots }

// Errors surfaced per §7. BadInput lives in internal/model; the remaining
// four kinds are the CP Solver Adapter's concern.
var (
	ErrInfeasibleBackground  = errors.New("solve: hard constraints alone are unsatisfiable")
	ErrSolverTimeout         = errors.New("solve: did not finish within the timeout")
	ErrSolverError           = errors.New("solve: internal solver error")
	ErrCancellationRequested = errors.New("solve: canceled by caller")
)

// Result is the outcome of one Solve call.
type Result struct {
	SAT      bool
	Placed   map[Cell]bool // only cells present in the model that evaluate true
	TimedOut bool
}

// Config bounds one Solve call, mirroring the teacher's
// "defaults if zero" convention (see microbatch.BatcherConfig).
type Config struct {
	// Timeout bounds wall-clock time; defaults to 10s if zero, matching the
	// spec's documented MCS default of ~10s per blocked defense (§4.5).
	Timeout time.Duration
	// MaxNodes bounds the DPLL search tree; 0 means unbounded (subject only
	// to Timeout/ctx).
	MaxNodes int
}

func (c Config) resolve() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Solve builds a fresh sat.Solver from dims and constraints (every given
// constraint is treated as must-hold for this call — callers are
// responsible for having already decided which soft constraints are
// active, per §4.5's soft/hard partition) and solves it.
func Solve(ctx context.Context, dims Dims, constraints []*store.Constraint, cfg Config) (*Result, error) {
	cfg = cfg.resolve()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	s := sat.New(dims.numVars())
	s.MaxNodes = cfg.MaxNodes
	if err := compile(s, dims, constraints); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSolverError, err)
	}

	model, isSAT, err := s.Solve(ctx)
	if err != nil {
		var ce *sat.ErrCanceled
		if errors.As(err, &ce) {
			if ctx.Err() == context.DeadlineExceeded {
				return &Result{TimedOut: true}, fmt.Errorf("%w (after %d nodes)", ErrSolverTimeout, ce.Nodes)
			}
			return &Result{TimedOut: true}, fmt.Errorf("%w (after %d nodes)", ErrCancellationRequested, ce.Nodes)
		}
		return nil, fmt.Errorf("%w: %s", ErrSolverError, err)
	}
	if !isSAT {
		return &Result{SAT: false}, nil
	}

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
	return &Result{SAT: true, Placed: placed}, nil
}

func compile(s *sat.Solver, dims Dims, constraints []*store.Constraint) error {
	for _, c := range constraints {
		switch p := c.Payload.(type) {
		case ForbidCells:
			for _, cell := range p.Cells {
				s.AddUnit(sat.Negative(dims.varOf(cell)))
			}
		case AtMostOneCells:
			s.AtMostOne(litsOf(dims, p.Cells))
		case ExactlyOneCell:
			s.ExactlyOne(litsOf(dims, p.Cells))
		case FixCell:
			s.AddUnit(sat.Positive(dims.varOf(p.Cell)))
		default:
			return fmt.Errorf("solve: unrecognized constraint payload %T (label %q)", c.Payload, c.Label)
		}
	}
	return nil
}

func litsOf(dims Dims, cells []Cell) []sat.Lit {
	lits := make([]sat.Lit, len(cells))
	for i, c := range cells {
		lits[i] = sat.Positive(dims.varOf(c))
	}
	return lits
}

// CheckSAT is a convenience used heavily by internal/explain's MUS/MCS
// search: it reports only satisfiability, discarding the assignment, which
// keeps deletion-based MUS (§4.4) and MARCO (§4.5) callers terse.
func CheckSAT(ctx context.Context, dims Dims, constraints []*store.Constraint, cfg Config) (bool, error) {
	res, err := Solve(ctx, dims, constraints, cfg)
	if err != nil {
		return false, err
	}
	return res.SAT, nil
}
