// Command defsched is the CLI entry point for the defense-scheduling
// constraint/explanation kernel: it loads a dataset snapshot, runs the two-
// mode solve sequence (§4.6), and for any blocked defense walks the user
// through one MUS plus an ordered MCS list, applying a chosen repair and
// re-solving. The interactive loop shape (read dataset once, print JSON,
// read a line, act, repeat) follows the teacher's eventloop shutdown
// examples' context+signal lifecycle rather than any REPL library — no
// terminal line-editor (e.g. the teacher's own prompt package) is wired in,
// since this CLI only ever needs single-line numeric selections, not
// multi-line editing, completion, or history.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rokokot/defense-scheduler/internal/applog"
	"github.com/rokokot/defense-scheduler/internal/dataset"
	"github.com/rokokot/defense-scheduler/internal/format"
	"github.com/rokokot/defense-scheduler/internal/model"
	"github.com/rokokot/defense-scheduler/internal/solve"
	"github.com/rokokot/defense-scheduler/internal/workflow"
)

func main() {
	datasetPath := flag.String("dataset", "", "path to a dataset snapshot JSON file")
	verbose := flag.Bool("verbose", false, "enable debug-level structured logging")
	fixPlaced := flag.Bool("fix-placed", true, "when explaining a blocked defense, fix already-placed defenses in place")
	interactive := flag.Bool("interactive", true, "prompt for a repair choice on each blocked defense instead of only reporting")
	flag.Parse()

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "defsched: -dataset is required")
		os.Exit(2)
	}

	logger := applog.New(&applog.Config{Verbose: *verbose})
	session := workflow.SessionID(fmt.Sprintf("cli-%d", time.Now().UnixNano()))
	sessionLog := applog.Session(logger, string(session))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, sessionLog, session, *datasetPath, *fixPlaced, *interactive); err != nil {
		log.Fatalf("defsched: %v", err)
	}
}

func run(ctx context.Context, sessionLog *applog.Logger, session workflow.SessionID, datasetPath string, fixPlaced, interactive bool) error {
	snap, err := loadSnapshot(datasetPath)
	if err != nil {
		return err
	}
	problem, err := snap.Build()
	if err != nil {
		return fmt.Errorf("build problem: %w", err)
	}

	in := bufio.NewScanner(os.Stdin)

	for {
		progress := make(chan solve.ProgressEvent, 8)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range progress {
				fmt.Fprintln(os.Stdout, string(format.ProgressEventJSON(ev)))
			}
		}()

		orch := workflow.New(problem, session, &workflow.Config{Progress: progress, Logger: logger})
		res, err := orch.Solve(ctx)
		close(progress)
		<-done
		if err != nil {
			return fmt.Errorf("solve: %w", err)
		}

		printJSON(format.Schedule(problem, res))

		if len(res.Unscheduled) == 0 {
			fmt.Fprintln(os.Stdout, "all defenses placed")
			return nil
		}

		if !interactive {
			fmt.Fprintf(os.Stdout, "%d defense(s) unscheduled: %s\n", len(res.Unscheduled), strings.Join(res.Unscheduled, ", "))
			return nil
		}

		target, ok := chooseTarget(in, res.Unscheduled)
		if !ok {
			return nil
		}

		expl, err := orch.ExplainBlocked(ctx, target, res.Schedule, fixPlaced)
		if err != nil {
			return fmt.Errorf("explain %s: %w", target, err)
		}
		if expl.Success {
			printJSON(format.ExplainDelta(problem, expl))
			continue
		}

		printJSON(format.Explain(expl))
		repair, ok := chooseRepair(in, expl, problem)
		if !ok {
			return nil
		}

		if err := dataset.ApplyRepair(snap, repair); err != nil {
			return fmt.Errorf("apply repair %q: %w", repair, err)
		}
		sessionLog.Clone().Str("repair", repair).Logger().Info().Log("applied repair")

		problem, err = snap.Build()
		if err != nil {
			return fmt.Errorf("rebuild problem after repair: %w", err)
		}
	}
}

func loadSnapshot(path string) (*dataset.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return dataset.Load(f)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "defsched: marshal output: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stdout, string(b))
}

func chooseTarget(in *bufio.Scanner, unscheduled []string) (string, bool) {
	fmt.Fprintln(os.Stdout, "blocked defenses:")
	for i, id := range unscheduled {
		fmt.Fprintf(os.Stdout, "  [%d] %s\n", i, id)
	}
	fmt.Fprint(os.Stdout, "select a defense to explain (blank to quit): ")
	if !in.Scan() {
		return "", false
	}
	line := strings.TrimSpace(in.Text())
	if line == "" {
		return "", false
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 0 || idx >= len(unscheduled) {
		fmt.Fprintln(os.Stderr, "defsched: invalid selection")
		return "", false
	}
	return unscheduled[idx], true
}

func chooseRepair(in *bufio.Scanner, expl *workflow.Explanation, problem *model.Problem) (string, bool) {
	var options []string
	for _, mcs := range expl.MCS {
		options = append(options, format.RepairStrings(format.CategorizeLabels(mcs.Labels), problem)...)
	}
	if len(options) == 0 {
		fmt.Fprintln(os.Stdout, "no actionable repair options in the enumerated MCS list")
		return "", false
	}
	fmt.Fprintln(os.Stdout, "repair options:")
	for i, opt := range options {
		fmt.Fprintf(os.Stdout, "  [%d] %s\n", i, opt)
	}
	fmt.Fprint(os.Stdout, "select a repair to apply (blank to quit): ")
	if !in.Scan() {
		return "", false
	}
	line := strings.TrimSpace(in.Text())
	if line == "" {
		return "", false
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 0 || idx >= len(options) {
		fmt.Fprintln(os.Stderr, "defsched: invalid selection")
		return "", false
	}
	return options[idx], true
}
