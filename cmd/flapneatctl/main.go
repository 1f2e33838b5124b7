package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"flapneat/internal/model"
	"flapneat/internal/storage"
	flapapi "flapneat/pkg/flapneat"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
	defaultDBPath = "flapneat.db"

	// Replays of a strong genome may never end on their own.
	defaultReplayMaxTicks = flapapi.DefaultMaxTicks
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, args []string) error

func commands() map[string]command {
	return map[string]command{
		"init":        runInit,
		"reset":       runReset,
		"run":         runRun,
		"runs":        runRuns,
		"fitness":     queryCommand("fitness", "fitness history", 50, (*flapapi.Client).FitnessHistory, printFitness),
		"diagnostics": queryCommand("diagnostics", "diagnostics", 50, (*flapapi.Client).Diagnostics, printDiagnostics),
		"top":         queryCommand("top", "top genomes", 5, (*flapapi.Client).TopGenomes, printTopGenomes),
		"lineage":     queryCommand("lineage", "lineage records", 50, (*flapapi.Client).Lineage, printLineage),
		"export":      runExport,
		"replay":      runReplay,
		"watch":       runWatch,
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
	return cmd(ctx, args[1:])
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", defaultDBPath, "sqlite database path"),
	}
}

func (s storeFlags) client() (*flapapi.Client, error) {
	return flapapi.New(flapapi.Options{
		StoreKind:     *s.kind,
		DBPath:        *s.dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
}

// withClient opens a client for the duration of fn.
func withClient(open func() (*flapapi.Client, error), fn func(*flapapi.Client) error) error {
	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return fn(client)
}

// artifactsClient reads only the run index and artifact files, so it never
// touches a database.
func artifactsClient() (*flapapi.Client, error) {
	return flapapi.New(flapapi.Options{StoreKind: "memory", BenchmarksDir: benchmarksDir, ExportsDir: exportsDir})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withClient(store.client, func(client *flapapi.Client) error {
		if err := client.Init(ctx); err != nil {
			return err
		}
		fmt.Printf("initialized store=%s\n", *store.kind)
		return nil
	})
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withClient(store.client, func(client *flapapi.Client) error {
		if err := client.Reset(ctx); err != nil {
			return err
		}
		fmt.Printf("reset store=%s\n", *store.kind)
		return nil
	})
}

// runFlags are shared by run and watch.
type runFlags struct {
	configPath  *string
	runID       *string
	population  *int
	generations *int
	seed        *int64
	elite       *int
	selection   *string
	fitnessGoal *float64
	fixedCourse *bool
	inputScale  *float64
	top         *int
	maxTicks    *int
	workers     *int
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		configPath:  fs.String("config", "", "optional run config JSON path"),
		runID:       fs.String("run-id", "", "explicit run id (optional)"),
		population:  fs.Int("pop", 50, "population size"),
		generations: fs.Int("gens", 50, "generation count"),
		seed:        fs.Int64("seed", 1, "rng seed"),
		elite:       fs.Int("elite", 0, "elite count (0 uses pop/5)"),
		selection:   fs.String("selection", "elite", "parent selection strategy: elite|tournament"),
		fitnessGoal: fs.Float64("fitness-goal", 0, "early-stop best fitness goal (0 disables)"),
		fixedCourse: fs.Bool("fixed-course", false, "replay the same course every generation"),
		inputScale:  fs.Float64("input-scale", 0, "observation scale (0 uses 1/world height)"),
		top:         fs.Int("top", 5, "top genomes to persist"),
		maxTicks:    fs.Int("max-ticks", 0, fmt.Sprintf("tick budget per generation (0 uses %d, -1 disables)", flapapi.DefaultMaxTicks)),
		workers:     fs.Int("workers", 1, "goroutines evaluating policies within a tick"),
	}
}

func (f runFlags) request(fs *flag.FlagSet) (flapapi.RunRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})
	values := map[string]any{
		"run-id":       *f.runID,
		"pop":          *f.population,
		"gens":         *f.generations,
		"seed":         *f.seed,
		"elite":        *f.elite,
		"selection":    *f.selection,
		"fitness-goal": *f.fitnessGoal,
		"fixed-course": *f.fixedCourse,
		"input-scale":  *f.inputScale,
		"top":          *f.top,
		"max-ticks":    *f.maxTicks,
		"workers":      *f.workers,
	}

	if *f.configPath == "" {
		all := make(map[string]bool, len(values))
		for name := range values {
			all[name] = true
		}
		var req flapapi.RunRequest
		overrideFromFlags(&req, all, values)
		return req, nil
	}
	req, err := loadRunRequestFromConfig(*f.configPath)
	if err != nil {
		return flapapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	overrideFromFlags(&req, setFlags, values)
	return req, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	runOpts := addRunFlags(fs)
	store := addStoreFlags(fs)
	quiet := fs.Bool("quiet", false, "suppress per-generation progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := runOpts.request(fs)
	if err != nil {
		return err
	}
	if !*quiet {
		req.OnGeneration = printGeneration
	}

	return withClient(store.client, func(client *flapapi.Client) error {
		summary, err := client.Run(ctx, req)
		if err != nil {
			return err
		}
		printRunSummary(summary)
		return nil
	})
}

func printGeneration(d model.GenerationDiagnostics) {
	fmt.Printf("generation=%d best_fitness=%.6f mean_fitness=%.6f min_fitness=%.6f best_score=%d ticks=%d end=%s course_seed=%d\n",
		d.Generation,
		d.BestFitness,
		d.MeanFitness,
		d.MinFitness,
		d.BestScore,
		d.Ticks,
		d.EndReason,
		d.CourseSeed,
	)
}

func printRunSummary(summary flapapi.RunSummary) {
	fmt.Printf("run_id=%s generations=%d final_best_fitness=%.6f best_score=%d stop_reason=%s champion=%s artifacts=%s\n",
		summary.RunID,
		len(summary.BestByGeneration),
		summary.FinalBestFitness,
		summary.BestScore,
		summary.StopReason,
		summary.ChampionID,
		summary.ArtifactsDir,
	)
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	var runs []flapapi.RunItem
	err := withClient(artifactsClient, func(client *flapapi.Client) (err error) {
		runs, err = client.Runs(ctx, flapapi.RunsRequest{Limit: *limit})
		return err
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		return writeJSON(runs)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s seed=%d pop=%d gens=%d elite=%d final_best_fitness=%.6f best_score=%d stop_reason=%s\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Seed,
			r.Population,
			r.Generations,
			r.EliteCount,
			r.FinalBestFitness,
			r.BestScore,
			r.StopReason,
		)
	}
	return nil
}

// queryFlags select a run for the read-only commands.
type queryFlags struct {
	runID   *string
	latest  *bool
	limit   *int
	jsonOut *bool
	store   storeFlags
}

func addQueryFlags(fs *flag.FlagSet, what string, limit int) queryFlags {
	return queryFlags{
		runID:   fs.String("run-id", "", "run id"),
		latest:  fs.Bool("latest", false, "use the most recent run from run index"),
		limit:   fs.Int("limit", limit, fmt.Sprintf("max %s to print (0 for all)", what)),
		jsonOut: fs.Bool("json", false, fmt.Sprintf("emit %s as JSON", what)),
		store:   addStoreFlags(fs),
	}
}

func (q queryFlags) validate(command string) error {
	if *q.runID != "" && *q.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *q.runID == "" && !*q.latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

// queryCommand builds a read-only command that prints the records of one
// run selected by --run-id or --latest.
func queryCommand[T any](
	name, what string,
	limit int,
	fetch func(*flapapi.Client, context.Context, flapapi.RunQuery) ([]T, error),
	show func([]T),
) command {
	return func(ctx context.Context, args []string) error {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		q := addQueryFlags(fs, what, limit)
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := q.validate(name); err != nil {
			return err
		}
		return withClient(q.store.client, func(client *flapapi.Client) error {
			records, err := fetch(client, ctx, flapapi.RunQuery{RunID: *q.runID, Latest: *q.latest, Limit: *q.limit})
			if err != nil {
				return err
			}
			switch {
			case len(records) == 0:
				fmt.Printf("no %s\n", what)
			case *q.jsonOut:
				return writeJSON(records)
			default:
				show(records)
			}
			return nil
		})
	}
}

func printFitness(history []float64) {
	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
}

func printDiagnostics(diagnostics []model.GenerationDiagnostics) {
	for _, d := range diagnostics {
		printGeneration(d)
	}
}

func printTopGenomes(top []model.TopGenomeRecord) {
	for _, item := range top {
		fmt.Printf("rank=%d genome_id=%s fitness=%.6f score=%d neurons=%d synapses=%d\n",
			item.Rank,
			item.Genome.ID,
			item.Fitness,
			item.Score,
			len(item.Genome.Neurons),
			len(item.Genome.Synapses),
		)
	}
}

func printLineage(lineage []model.LineageRecord) {
	for _, rec := range lineage {
		fmt.Printf("generation=%d genome_id=%s parent_id=%s operation=%s fingerprint=%s\n",
			rec.Generation,
			rec.GenomeID,
			orDash(rec.ParentID),
			rec.Operation,
			rec.Fingerprint,
		)
	}
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	return withClient(artifactsClient, func(client *flapapi.Client) error {
		exported, err := client.Export(ctx, flapapi.ExportRequest{
			RunID:  *runID,
			Latest: *latest,
			OutDir: *outDir,
		})
		if err != nil {
			return err
		}
		fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
		return nil
	})
}

// replayFlags are shared by replay and watch.
type replayFlags struct {
	runID      *string
	latest     *bool
	genomeIDs  *string
	count      *int
	courseSeed *int64
	maxTicks   *int
}

func addReplayFlags(fs *flag.FlagSet) replayFlags {
	return replayFlags{
		runID:      fs.String("run-id", "", "replay top genomes of this run"),
		latest:     fs.Bool("latest", false, "replay top genomes of the most recent run"),
		genomeIDs:  fs.String("genomes", "", "comma-separated stored genome ids to replay"),
		count:      fs.Int("count", 1, "top genomes to replay from the selected run"),
		courseSeed: fs.Int64("course-seed", 0, "course seed (defaults to the run seed)"),
		maxTicks:   fs.Int("max-ticks", defaultReplayMaxTicks, "tick budget for the replay (0 keeps the run's budget)"),
	}
}

func (f replayFlags) selected() bool {
	return *f.runID != "" || *f.latest || *f.genomeIDs != ""
}

func (f replayFlags) request(fs *flag.FlagSet) (flapapi.ReplayRequest, error) {
	if *f.runID != "" && *f.latest {
		return flapapi.ReplayRequest{}, errors.New("use either --run-id or --latest, not both")
	}
	req := flapapi.ReplayRequest{
		RunID:    *f.runID,
		Latest:   *f.latest,
		Count:    *f.count,
		MaxTicks: *f.maxTicks,
	}
	for _, id := range strings.Split(*f.genomeIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.GenomeIDs = append(req.GenomeIDs, id)
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "course-seed" {
			seed := *f.courseSeed
			req.CourseSeed = &seed
		}
	})
	return req, nil
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	replayOpts := addReplayFlags(fs)
	store := addStoreFlags(fs)
	jsonOut := fs.Bool("json", false, "emit replay result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !replayOpts.selected() {
		return errors.New("replay requires --run-id, --latest or --genomes")
	}
	req, err := replayOpts.request(fs)
	if err != nil {
		return err
	}

	return withClient(store.client, func(client *flapapi.Client) error {
		summary, err := client.Replay(ctx, req)
		if err != nil {
			return err
		}
		if *jsonOut {
			return writeJSON(summary.Result)
		}
		printReplay(summary)
		return nil
	})
}

func printReplay(summary flapapi.ReplaySummary) {
	result := summary.Result
	fmt.Printf("replay course_seed=%d ticks=%d end=%s obstacles_passed=%d best_fitness=%.6f\n",
		summary.CourseSeed,
		result.Ticks,
		result.Reason,
		result.ObstaclesPassed,
		result.BestFitness,
	)
	for i, agent := range result.Agents {
		genomeID := ""
		if i < len(summary.GenomeIDs) {
			genomeID = summary.GenomeIDs[i]
		}
		fmt.Printf("genome_id=%s fitness=%.6f score=%d alive=%t cause=%s ticks=%d\n",
			genomeID,
			agent.Fitness,
			agent.Score,
			agent.Alive,
			orDash(string(agent.Cause)),
			agent.TicksSurvived,
		)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: flapneatctl <init|reset|run|runs|fitness|diagnostics|top|lineage|export|replay|watch> [flags]", msg)
}
