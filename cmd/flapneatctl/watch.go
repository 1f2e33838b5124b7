package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"flapneat/internal/view"
	flapapi "flapneat/pkg/flapneat"
)

// openTerminal is replaced in tests with a simulation screen.
var openTerminal = view.Open

// runWatch evolves a population, or replays stored genomes, with every tick
// drawn to the terminal. Quitting the viewer cancels the run.
func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	runOpts := addRunFlags(fs)
	store := addStoreFlags(fs)
	delayMS := fs.Int("delay-ms", 30, "delay between frames in milliseconds")
	replayRun := fs.String("replay-run", "", "replay top genomes of this run instead of evolving")
	replayLatest := fs.Bool("replay-latest", false, "replay top genomes of the most recent run instead of evolving")
	count := fs.Int("count", 5, "top genomes to replay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *delayMS < 0 {
		return errors.New("delay-ms must be >= 0")
	}
	if *replayRun != "" && *replayLatest {
		return errors.New("use either --replay-run or --replay-latest, not both")
	}
	replaying := *replayRun != "" || *replayLatest

	var runReq flapapi.RunRequest
	if !replaying {
		req, err := runOpts.request(fs)
		if err != nil {
			return err
		}
		runReq = req
	}

	client, err := store.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	term, err := openTerminal(time.Duration(*delayMS) * time.Millisecond)
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go term.Listen()
	go func() {
		select {
		case <-term.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		report func()
		runErr error
	)
	if replaying {
		maxTicks := *runOpts.maxTicks
		if maxTicks == 0 {
			maxTicks = defaultReplayMaxTicks
		}
		var summary flapapi.ReplaySummary
		summary, runErr = client.Replay(ctx, flapapi.ReplayRequest{
			RunID:    *replayRun,
			Latest:   *replayLatest,
			Count:    *count,
			MaxTicks: maxTicks,
			Observer: term,
		})
		report = func() { printReplay(summary) }
	} else {
		runReq.Observer = term
		var summary flapapi.RunSummary
		summary, runErr = client.Run(ctx, runReq)
		report = func() { printRunSummary(summary) }
	}
	term.Close()

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println("watch stopped")
			return nil
		}
		return runErr
	}
	report()
	return nil
}
