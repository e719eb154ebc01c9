// Package workflow implements the Workflow Orchestrator (C6): the
// interactive two-mode solve sequence of §4.6, blocked-defense
// identification, and per-defense explanation, wiring together the Model
// Compiler, CP Solver Adapter, and Explanation Engine. It never applies a
// repair itself — per §3's Lifecycle note, the external repair applicator
// (internal/dataset) is a black box the caller invokes between loop
// iterations, rebuilding a fresh model.Problem before calling Solve again.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rokokot/defense-scheduler/internal/applog"
	"github.com/rokokot/defense-scheduler/internal/compiler"
	"github.com/rokokot/defense-scheduler/internal/explain"
	"github.com/rokokot/defense-scheduler/internal/model"
	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/store"
)

// SessionID threads an interactive session's identity through log lines
// only; no server-side session state is kept (see DESIGN.md / SPEC_FULL.md
// §5's supplemented-feature note on why this stays this thin).
type SessionID string

// Config bounds one Orchestrator's solves and explanations, matching the
// teacher's "defaults if zero" BatcherConfig convention.
type Config struct {
	// SolveTimeout bounds each CP solver call (main solve and explain-one).
	// Defaults to 10s if zero.
	SolveTimeout time.Duration
	// ExplainTimeout bounds one MUS+MCS computation (§4.5's ~10s default
	// per blocked defense). Defaults to 10s if zero.
	ExplainTimeout time.Duration
	// MaxMCS bounds how many MCSes EnumerateMCS yields per call. Defaults
	// to 50 if zero.
	MaxMCS int
	// Progress, if non-nil, receives one ProgressEvent per improving
	// incumbent during Solve's two maximize phases.
	Progress chan<- solve.ProgressEvent
	// Logger receives one entry per Solve phase and per ExplainBlocked
	// invocation, plus every explain.Config.Trace line at debug level.
	// Defaults to a discarding Logger if nil, so call sites never need a
	// nil check (§2's constructor-injection requirement, never a
	// package-global logger).
	Logger *applog.Logger
}

func (c *Config) resolve() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.SolveTimeout <= 0 {
		out.SolveTimeout = 10 * time.Second
	}
	if out.ExplainTimeout <= 0 {
		out.ExplainTimeout = 10 * time.Second
	}
	if out.MaxMCS <= 0 {
		out.MaxMCS = 50
	}
	if out.Logger == nil {
		out.Logger = applog.New(&applog.Config{Writer: io.Discard})
	}
	return out
}

// Orchestrator drives one session's worth of solves against a fixed
// model.Problem snapshot. Build a new one after every repair application,
// per §3's Lifecycle ("a fresh MUS or MCS run never mutates a prior
// model").
type Orchestrator struct {
	problem *model.Problem
	session SessionID
	cfg     Config
	logger  *applog.Logger
}

// New builds an Orchestrator over p, tagged with session for log
// correlation.
func New(p *model.Problem, session SessionID, cfg *Config) *Orchestrator {
	resolved := cfg.resolve()
	return &Orchestrator{
		problem: p,
		session: session,
		cfg:     resolved,
		logger:  applog.Session(resolved.Logger, string(session)),
	}
}

// SolveResult is the outcome of the Solve method's two-step sequence.
type SolveResult struct {
	// Schedule maps defense id to its placed (room, slot).
	Schedule map[string]model.Assignment
	// Unscheduled lists the defense ids step 1 could not place
	// simultaneously (§4.6 step 1's set U). Empty iff step 2 ran.
	Unscheduled []string
	// AdjacencyScore and UpperBound are only meaningful when Unscheduled is
	// empty (step 2 ran).
	AdjacencyScore int
	UpperBound     int
	TimedOut       bool
}

// Solve runs §4.6 steps 1–2: maximize planned-defense count, and, only if
// every defense turned out simultaneously placeable, maximize adjacency.
// It never drives step 3 (per-defense explanation) — callers branch to
// ExplainBlocked for each id in Unscheduled themselves, since step 3 is
// inherently a per-user-selection loop.
func (o *Orchestrator) Solve(ctx context.Context) (*SolveResult, error) {
	o.logger.Info().Log("solve: starting place-max phase")

	placeCompiled, err := compiler.Compile(o.problem, compiler.ModePlaceMax, compiler.Options{})
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: compile place-max: %w", o.session, err)
	}

	placeRes, err := solve.MaximizePlannedCount(ctx, placeCompiled.Dims, placeCompiled.Store.All(), solve.Config{Timeout: o.cfg.SolveTimeout}, o.cfg.Progress)
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: maximize planned count: %w", o.session, err)
	}
	if placeRes.Result == nil {
		o.logger.Err().Log("solve: background hard constraints are unsatisfiable")
		return nil, fmt.Errorf("workflow[%s]: %w", o.session, solve.ErrInfeasibleBackground)
	}

	schedule := scheduleFromResult(o.problem, placeRes.Result)
	unscheduled := unscheduledIDs(o.problem, schedule)
	if len(unscheduled) > 0 {
		o.logger.Info().Int("unscheduled", len(unscheduled)).Bool("timed_out", placeRes.TimedOut).Log("solve: place-max phase left defenses blocked")
		return &SolveResult{Schedule: schedule, Unscheduled: unscheduled, TimedOut: placeRes.TimedOut}, nil
	}
	o.logger.Info().Log("solve: every defense placeable, starting adjacency phase")

	adjCompiled, err := compiler.Compile(o.problem, compiler.ModeAdjacencyOptimize, compiler.Options{})
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: compile adjacency: %w", o.session, err)
	}
	layout := compiler.NewLayout(o.problem)
	adjRes, err := solve.MaximizeAdjacency(ctx, adjCompiled.Dims, adjCompiled.Store.All(), adjCompiled.AdjacencyPairs, layout.NumEnabled, o.problem.T, solve.Config{Timeout: o.cfg.SolveTimeout}, o.cfg.Progress)
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: maximize adjacency: %w", o.session, err)
	}
	if adjRes.Result == nil {
		// Every defense was placeable on its own in step 1, but forcing all
		// of them planned simultaneously (must-plan on every defense, hard)
		// proved infeasible before any adjacency search ran. Surface the
		// step-1 schedule rather than fail the whole call.
		o.logger.Warning().Log("solve: adjacency phase infeasible under simultaneous placement, keeping place-max schedule")
		return &SolveResult{Schedule: schedule, TimedOut: adjRes.TimedOut}, nil
	}

	finalSchedule := scheduleFromResult(o.problem, adjRes.Result)
	o.logger.Info().Int("adjacency_score", adjRes.Value).Int("upper_bound", len(adjCompiled.AdjacencyPairs)).Bool("timed_out", adjRes.TimedOut).Log("solve: adjacency phase complete")
	return &SolveResult{
		Schedule:       finalSchedule,
		AdjacencyScore: adjRes.Value,
		UpperBound:     len(adjCompiled.AdjacencyPairs),
		TimedOut:       adjRes.TimedOut,
	}, nil
}

// Explanation is the outcome of ExplainBlocked: either the target turned
// out placeable after all (Success), or one MUS plus an ordered MCS list.
type Explanation struct {
	Target  string
	Success bool

	// Schedule and Moved are only set when Success is true. Moved tags
	// every defense id whose placement differs from its PrePlaced entry —
	// the decided Open Question on reporting migrated placed defenses
	// (SPEC_FULL.md §6).
	Schedule map[string]model.Assignment
	Moved    map[string]bool

	// MUS and MCS are only set when Success is false.
	MUS []string
	MCS []explain.MCSResult

	TimedOut bool
}

// musPatterns and mcsPatterns implement §4.5's "Soft/hard partition for the
// two services" — two different soft-constraint selections over the same
// compiled store, everything else in the store being hard background by
// complement.
var (
	musPatterns = []store.Pattern{
		store.GlobPattern("person-unavailable *"),
		store.GlobPattern("person-overlap *"),
		store.GlobPattern("room-unavailable *"),
		store.GlobPattern("room-overlap *"),
	}
	mcsPatterns = []store.Pattern{
		store.GlobPattern("person-unavailable *"),
		store.GlobPattern("extra-room *"),
		store.GlobPattern("extra-day *"),
		store.GlobPattern("enable-room *"),
	}
)

// ExplainBlocked runs §4.6 step 3 for one user-selected blocked defense:
// builds a fresh Mode-A model fixing prePlaced (if fixPlaced) or merely
// keeping them consistent (otherwise), requires target planned, and either
// reports a successful placement or computes one MUS plus an MCS list.
func (o *Orchestrator) ExplainBlocked(ctx context.Context, target string, prePlaced map[string]model.Assignment, fixPlaced bool) (*Explanation, error) {
	o.logger.Info().Str("target", target).Bool("fix_placed", fixPlaced).Log("explain: starting explain-one solve")

	opts := compiler.Options{Target: target}
	if fixPlaced {
		opts.Fixed = prePlaced
	}
	compiled, err := compiler.Compile(o.problem, compiler.ModeExplainOne, opts)
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: compile explain-one <%s>: %w", o.session, target, err)
	}

	all := compiled.Store.All()
	res, err := solve.Solve(ctx, compiled.Dims, all, solve.Config{Timeout: o.cfg.SolveTimeout})
	if err != nil {
		if errors.Is(err, solve.ErrSolverTimeout) || errors.Is(err, solve.ErrCancellationRequested) {
			o.logger.Warning().Str("target", target).Log("explain: explain-one solve timed out")
			return &Explanation{Target: target, TimedOut: true}, nil
		}
		return nil, fmt.Errorf("workflow[%s]: explain-one solve <%s>: %w", o.session, target, err)
	}

	if res.SAT {
		schedule := scheduleFromResult(o.problem, res)
		moved := make(map[string]bool, len(prePlaced))
		for id, prior := range prePlaced {
			if cur, ok := schedule[id]; ok && cur != prior {
				moved[id] = true
			}
		}
		o.logger.Info().Str("target", target).Int("moved", len(moved)).Log("explain: target placeable, no MUS/MCS needed")
		return &Explanation{Target: target, Success: true, Schedule: schedule, Moved: moved}, nil
	}

	o.logger.Info().Str("target", target).Log("explain: target still blocked, computing MUS and MCS")
	explainCfg := explain.Config{
		Timeout:  o.cfg.ExplainTimeout,
		MaxCount: o.cfg.MaxMCS,
		Trace: func(line string) {
			o.logger.Debug().Str("target", target).Log(line)
		},
	}

	musSoft := compiled.Store.Select(musPatterns...)
	musResult, err := explain.ComputeMUS(ctx, compiled.Dims, musSoft, complement(all, musSoft), explainCfg)
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: compute MUS <%s>: %w", o.session, target, err)
	}

	mcsSoft := compiled.Store.Select(mcsPatterns...)
	mcsResults, timedOut, err := explain.EnumerateMCS(ctx, compiled.Dims, mcsSoft, complement(all, mcsSoft), explainCfg)
	if err != nil {
		return nil, fmt.Errorf("workflow[%s]: enumerate MCS <%s>: %w", o.session, target, err)
	}

	o.logger.Info().Str("target", target).Int("mus_size", len(musResult.Labels)).Int("mcs_count", len(mcsResults)).Bool("timed_out", timedOut).Log("explain: MUS and MCS computed")
	return &Explanation{
		Target:   target,
		MUS:      musResult.Labels,
		MCS:      mcsResults,
		TimedOut: timedOut,
	}, nil
}

func scheduleFromResult(p *model.Problem, res *solve.Result) map[string]model.Assignment {
	out := make(map[string]model.Assignment, len(p.Defenses))
	for cell, on := range res.Placed {
		if !on || cell.R >= len(p.Rooms) || cell.T >= p.T {
			continue
		}
		out[p.Defenses[cell.D].ID] = model.Assignment{Room: p.Rooms[cell.R].Name, Slot: cell.T}
	}
	return out
}

func unscheduledIDs(p *model.Problem, schedule map[string]model.Assignment) []string {
	var out []string
	for _, d := range p.Defenses {
		if _, ok := schedule[d.ID]; !ok {
			out = append(out, d.ID)
		}
	}
	return out
}

func complement(all, subset []*store.Constraint) []*store.Constraint {
	in := make(map[*store.Constraint]bool, len(subset))
	for _, c := range subset {
		in[c] = true
	}
	out := make([]*store.Constraint, 0, len(all)-len(subset))
	for _, c := range all {
		if !in[c] {
			out = append(out, c)
		}
	}
	return out
}
