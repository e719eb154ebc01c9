// Package explain implements the Explanation Engine (C5): deletion-based
// MUS extraction (§4.4) and MARCO-style MCS enumeration (§4.5) over the
// labeled constraints the Model Compiler emitted, reusing the CP Solver
// Adapter as the SAT oracle and a second, independent internal/solve/sat
// instance as the MARCO map solver (§9's "MARCO map" note — this project
// embeds a small DPLL core for that role rather than reusing the CP
// solver for the power-set walk, since the map solver's variables are one
// per soft constraint rather than one per tensor cell).
package explain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/solve/sat"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// Config bounds one MUS or MCS call.
type Config struct {
	// Timeout is the overall wall-clock budget (default ~10s per blocked
	// defense, §4.5).
	Timeout time.Duration
	// MaxCount bounds how many MCSes EnumerateMCS yields (default 50, §4.5).
	MaxCount int
	// Trace, if non-nil, receives one line per MARCO iteration and per MUS
	// deletion step, giving the caller visibility into the progress of a
	// long-running explanation.
	Trace func(line string)
}

func (c Config) resolve() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxCount <= 0 {
		c.MaxCount = 50
	}
	return c
}

func (c Config) trace(msg string) {
	if c.Trace == nil {
		return
	}
	c.Trace(msg)
}

// MUSResult is one minimal unsatisfiable subset, already mapped from raw
// constraints to its unique set of group labels.
type MUSResult struct {
	Labels []string
}

// MCSResult is one minimal correction subset, already mapped to labels.
type MCSResult struct {
	Labels []string
}

// ComputeMUS runs §4.4's deletion-based search: soft is S, hard is H, and
// the caller guarantees soft∪hard is UNSAT (the orchestrator only calls
// this for defenses already found blocked).
func ComputeMUS(ctx context.Context, dims solve.Dims, soft, hard []*store.Constraint, cfg Config) (*MUSResult, error) {
	cfg = cfg.resolve()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	solveCfg := solve.Config{Timeout: cfg.Timeout}
	m, err := shrinkToMUS(ctx, dims, hard, soft, solveCfg, cfg)
	if err != nil {
		return nil, err
	}
	return &MUSResult{Labels: labelSet(m)}, nil
}

// shrinkToMUS implements the deletion loop of §4.4 over an arbitrary
// candidate set (used both for the top-level MUS and, restricted to a
// MARCO seed, for shrinking an infeasible seed down to a blocking core).
func shrinkToMUS(ctx context.Context, dims solve.Dims, hard, candidates []*store.Constraint, solveCfg solve.Config, cfg Config) ([]*store.Constraint, error) {
	m := append([]*store.Constraint(nil), candidates...)
	for _, c := range candidates {
		without := removeOne(m, c)
		ok, err := solve.CheckSAT(ctx, dims, combine(without, hard), solveCfg)
		if err != nil {
			return nil, err
		}
		cfg.trace("MUS: dropped constraint " + c.Label + " -> SAT=" + boolStr(ok))
		if !ok {
			m = without
		}
	}
	return m, nil
}

// EnumerateMCS runs the MARCO loop of §4.5. It returns the MCSes found so
// far (deduplicated by label-set projection, per the minimality property)
// together with whether the call stopped due to timeout rather than map
// exhaustion or max_count.
func EnumerateMCS(ctx context.Context, dims solve.Dims, soft, hard []*store.Constraint, cfg Config) ([]MCSResult, bool, error) {
	cfg = cfg.resolve()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	solveCfg := solve.Config{Timeout: cfg.Timeout}
	n := len(soft)

	var blocking []sat.Clause
	var results []MCSResult
	seen := make(map[string]bool)

	for len(results) < cfg.MaxCount {
		select {
		case <-ctx.Done():
			return results, true, nil
		default:
		}

		mapSolver := sat.New(n)
		for _, cl := range blocking {
			mapSolver.AddClause(cl...)
		}
		model, ok, err := mapSolver.Solve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return results, true, nil
			}
			return results, false, err
		}
		if !ok {
			break // map exhausted: every subset has been classified
		}

		var inA, notInA []int
		for i := 0; i < n; i++ {
			if model.Value(sat.Var(i)) {
				inA = append(inA, i)
			} else {
				notInA = append(notInA, i)
			}
		}

		isSAT, err := solve.CheckSAT(ctx, dims, combine(pickIdx(soft, inA), hard), solveCfg)
		if err != nil {
			if ctx.Err() != nil {
				return results, true, nil
			}
			return results, false, err
		}
		cfg.trace("MARCO: seed |A|=" + itoa(len(inA)) + " SAT=" + boolStr(isSAT))

		if isSAT {
			mssSet := make(map[int]bool, len(inA))
			for _, i := range inA {
				mssSet[i] = true
			}
			for _, i := range notInA {
				trial := mssIndices(mssSet)
				trial = append(trial, i)
				ok2, err := solve.CheckSAT(ctx, dims, combine(pickIdx(soft, trial), hard), solveCfg)
				if err != nil {
					if ctx.Err() != nil {
						return results, true, nil
					}
					return results, false, err
				}
				if ok2 {
					mssSet[i] = true
				}
			}

			var cIdx []int
			for i := 0; i < n; i++ {
				if !mssSet[i] {
					cIdx = append(cIdx, i)
				}
			}
			if len(cIdx) == 0 {
				// The whole soft set is satisfiable together with hard: the
				// caller's UNSAT precondition didn't hold. Nothing more to
				// enumerate.
				break
			}

			labels := labelSet(pickIdx(soft, cIdx))
			sig := signature(labels)
			if !seen[sig] {
				seen[sig] = true
				results = append(results, MCSResult{Labels: labels})
				cfg.trace("MARCO: yielded MCS " + sig)
			}

			clause := make(sat.Clause, len(cIdx))
			for k, i := range cIdx {
				clause[k] = sat.Positive(sat.Var(i))
			}
			blocking = append(blocking, clause)
		} else {
			mus, err := shrinkToMUS(ctx, dims, hard, pickIdx(soft, inA), solveCfg, cfg)
			if err != nil {
				if ctx.Err() != nil {
					return results, true, nil
				}
				return results, false, err
			}
			musIdx := indicesOf(soft, mus)
			clause := make(sat.Clause, len(musIdx))
			for k, i := range musIdx {
				clause[k] = sat.Negative(sat.Var(i))
			}
			blocking = append(blocking, clause)
		}
	}

	return results, false, nil
}

// ErrNoCandidates names the case of a soft-constraint selection per §4.5's
// partition turning out empty. Neither this package nor any caller in this
// module returns it.
var ErrNoCandidates = errors.New("explain: empty soft-constraint selection")

func combine(a, b []*store.Constraint) []*store.Constraint {
	out := make([]*store.Constraint, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func removeOne(list []*store.Constraint, target *store.Constraint) []*store.Constraint {
	out := make([]*store.Constraint, 0, len(list))
	removed := false
	for _, c := range list {
		if !removed && c == target {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

func pickIdx(all []*store.Constraint, idx []int) []*store.Constraint {
	out := make([]*store.Constraint, len(idx))
	for i, k := range idx {
		out[i] = all[k]
	}
	return out
}

func indicesOf(all, subset []*store.Constraint) []int {
	pos := make(map[*store.Constraint]int, len(all))
	for i, c := range all {
		pos[c] = i
	}
	out := make([]int, 0, len(subset))
	for _, c := range subset {
		out = append(out, pos[c])
	}
	return out
}

func mssIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	return out
}

func labelSet(cs []*store.Constraint) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cs {
		if !seen[c.Label] {
			seen[c.Label] = true
			out = append(out, c.Label)
		}
	}
	return out
}

func signature(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
