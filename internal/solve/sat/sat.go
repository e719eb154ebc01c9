// Package sat implements a small DPLL-style boolean satisfiability solver
// with unit propagation and sequential-counter cardinality encodings.
//
// No SAT/CP-SAT solver exists anywhere in the example pack this project was
// grounded on (see DESIGN.md); this package exists purely because the CP
// Solver Adapter (internal/solve, C4 per the kernel spec) needs *some*
// backend, and the instance sizes the kernel targets (a handful of rooms,
// days, and thesis defenses per solve) are small enough that a
// non-incremental DPLL search, rebuilt fresh per call, is adequate. It is
// not intended to scale to industrial CP-SAT workloads.
package sat

import (
	"context"
	"fmt"
)

// Var is a 0-based boolean variable id.
type Var int

// Lit is a literal: a variable, optionally negated.
type Lit struct {
	Var Var
	Neg bool
}

// Positive returns the positive literal for v.
func Positive(v Var) Lit { return Lit{Var: v} }

// Negative returns the negated literal for v.
func Negative(v Var) Lit { return Lit{Var: v, Neg: true} }

// Not returns the complement of l.
func (l Lit) Not() Lit { return Lit{Var: l.Var, Neg: !l.Neg} }

// Clause is a disjunction of literals.
type Clause []Lit

const (
	unset   = 0
	isTrue  = 1
	isFalse = 2
)

// Solver is a fresh, single-use DPLL instance: create with New, add clauses
// and/or cardinality constraints, then call Solve once.
type Solver struct {
	numVars int
	clauses []Clause
	assign  []int8 // per-var: unset/isTrue/isFalse
	trail   []Var
	// MaxNodes bounds the search tree to guard against pathological
	// instances; 0 means unbounded (subject only to ctx cancellation).
	MaxNodes int
	nodes    int
}

// New returns a Solver with numVars boolean variables (0..numVars-1) and no
// clauses yet.
func New(numVars int) *Solver {
	return &Solver{
		numVars: numVars,
		assign:  make([]int8, numVars),
	}
}

// NewVar allocates one additional variable (used for cardinality auxiliary
// variables) and returns its id.
func (s *Solver) NewVar() Var {
	v := Var(s.numVars)
	s.numVars++
	s.assign = append(s.assign, unset)
	return v
}

// AddClause adds one disjunctive clause.
func (s *Solver) AddClause(lits ...Lit) {
	c := make(Clause, len(lits))
	copy(c, lits)
	s.clauses = append(s.clauses, c)
}

// AddUnit fixes lit to true.
func (s *Solver) AddUnit(lit Lit) { s.AddClause(lit) }

// ErrCanceled is returned by Solve when ctx is canceled before a result was
// reached.
type ErrCanceled struct{ Nodes int }

func (e *ErrCanceled) Error() string { return fmt.Sprintf("sat: canceled after %d nodes", e.Nodes) }

// Model is a satisfying assignment, keyed by Var.
type Model []bool

func (m Model) Value(v Var) bool { return m[v] }

// Solve runs DPLL search with unit propagation. It returns (model, true,
// nil) if satisfiable, (nil, false, nil) if proven unsatisfiable, or
// (nil, false, *ErrCanceled) if ctx was canceled or MaxNodes was exceeded
// before a verdict was reached.
func (s *Solver) Solve(ctx context.Context) (Model, bool, error) {
	ok, canceled := s.search(ctx)
	if canceled {
		return nil, false, &ErrCanceled{Nodes: s.nodes}
	}
	if !ok {
		return nil, false, nil
	}
	m := make(Model, s.numVars)
	for v := 0; v < s.numVars; v++ {
		m[v] = s.assign[v] == isTrue
	}
	return m, true, nil
}

// search returns (satisfiable, canceled).
func (s *Solver) search(ctx context.Context) (bool, bool) {
	s.nodes++
	if s.nodes&1023 == 0 {
		select {
		case <-ctx.Done():
			return false, true
		default:
		}
	}
	if s.MaxNodes > 0 && s.nodes > s.MaxNodes {
		return false, true
	}

	mark := len(s.trail)
	ok := s.propagate()
	if !ok {
		s.undoTo(mark)
		return false, false
	}

	v, found := s.pickUnassigned()
	if !found {
		return true, false // all assigned, no conflict: satisfiable
	}

	for _, val := range [2]int8{isTrue, isFalse} {
		d := len(s.trail)
		s.assignVar(v, val)
		sat, canceled := s.search(ctx)
		if canceled {
			return false, true
		}
		if sat {
			return true, false
		}
		s.undoTo(d)
	}
	s.undoTo(mark)
	return false, false
}

func (s *Solver) pickUnassigned() (Var, bool) {
	for v := 0; v < s.numVars; v++ {
		if s.assign[v] == unset {
			return Var(v), true
		}
	}
	return 0, false
}

func (s *Solver) assignVar(v Var, val int8) {
	s.assign[v] = val
	s.trail = append(s.trail, v)
}

func (s *Solver) undoTo(mark int) {
	for i := len(s.trail) - 1; i >= mark; i-- {
		s.assign[s.trail[i]] = unset
	}
	s.trail = s.trail[:mark]
}

func (l Lit) satisfiedBy(assign []int8) (sat bool, isUnassigned bool) {
	switch assign[l.Var] {
	case unset:
		return false, true
	case isTrue:
		return !l.Neg, false
	default:
		return l.Neg, false
	}
}

// propagate performs unit propagation to a fixpoint, returning false on
// conflict. It is a simple full-clause rescan, adequate for the small
// instance sizes this package targets (see package doc).
func (s *Solver) propagate() bool {
	for {
		changed := false
		for _, c := range s.clauses {
			satisfied := false
			var lastUnassigned Lit
			unassignedCount := 0
			for _, l := range c {
				sat, unassigned := l.satisfiedBy(s.assign)
				if sat {
					satisfied = true
					break
				}
				if unassigned {
					unassignedCount++
					lastUnassigned = l
				}
			}
			if satisfied {
				continue
			}
			if unassignedCount == 0 {
				return false // conflict: every literal falsified
			}
			if unassignedCount == 1 {
				val := isTrue
				if lastUnassigned.Neg {
					val = isFalse
				}
				s.assignVar(lastUnassigned.Var, int8(val))
				changed = true
			}
		}
		if !changed {
			return true
		}
	}
}

// AtMostK adds clauses constraining at most k of lits to be true, using a
// sequential-counter encoding (O(n*k) clauses/vars).
func (s *Solver) AtMostK(lits []Lit, k int) {
	n := len(lits)
	if k < 0 {
		k = 0
	}
	if k >= n {
		return // constraint is vacuous
	}
	if k == 0 {
		for _, l := range lits {
			s.AddClause(l.Not())
		}
		return
	}

	// s_{i,j} (1<=i<=n-1, 1<=j<=k): "at least j of lits[0..i-1] are true"
	sv := make([][]Var, n) // sv[i][j-1]
	for i := 0; i < n-1; i++ {
		sv[i] = make([]Var, k)
		for j := 0; j < k; j++ {
			sv[i][j] = s.NewVar()
		}
	}

	x := lits
	// i = 0 (first variable)
	s.AddClause(x[0].Not(), Positive(sv[0][0]))
	for j := 1; j < k; j++ {
		s.AddClause(Negative(sv[0][j]))
	}

	for i := 1; i < n-1; i++ {
		s.AddClause(x[i].Not(), Positive(sv[i][0]))
		s.AddClause(Negative(sv[i-1][0]), Positive(sv[i][0]))
		for j := 1; j < k; j++ {
			s.AddClause(x[i].Not(), Negative(sv[i-1][j-1]), Positive(sv[i][j]))
			s.AddClause(Negative(sv[i-1][j]), Positive(sv[i][j]))
		}
		s.AddClause(x[i].Not(), Negative(sv[i-1][k-1]))
	}
	// last variable
	s.AddClause(x[n-1].Not(), Negative(sv[n-2][k-1]))
}

// AtMostOne is AtMostK with k=1, kept as a named helper since it is by far
// the most common cardinality shape emitted by the Model Compiler (F2, F4,
// F8).
func (s *Solver) AtMostOne(lits []Lit) { s.AtMostK(lits, 1) }

// ExactlyOne adds an at-least-one clause plus AtMostOne.
func (s *Solver) ExactlyOne(lits []Lit) {
	s.AddClause(lits...)
	s.AtMostOne(lits)
}

// AtLeastK adds clauses constraining at least k of lits to be true: the
// complement of AtMostK(len(lits)-k) over the negated literals.
func (s *Solver) AtLeastK(lits []Lit, k int) {
	if k <= 0 {
		return
	}
	if k > len(lits) {
		// unsatisfiable by construction: force a direct conflict
		s.AddClause()
		return
	}
	neg := make([]Lit, len(lits))
	for i, l := range lits {
		neg[i] = l.Not()
	}
	s.AtMostK(neg, len(lits)-k)
}
