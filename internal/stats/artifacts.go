package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"flapneat/internal/model"
	"flapneat/internal/scape"
)

const (
	configFile         = "config.json"
	fitnessFile        = "fitness_history.json"
	diagnosticsFile    = "generation_diagnostics.json"
	diagnosticsCSVFile = "generation_diagnostics.csv"
	topGenomesFile     = "top_genomes.json"
	lineageFile        = "lineage.json"
)

// runFiles lists the artifacts every run directory holds, in write order.
var runFiles = []string{configFile, fitnessFile, diagnosticsFile, diagnosticsCSVFile, topGenomesFile, lineageFile}

// RunConfig is everything needed to repeat a run or replay its genomes on
// the same course.
type RunConfig struct {
	RunID          string       `json:"run_id"`
	Seed           int64        `json:"seed"`
	PopulationSize int          `json:"population_size"`
	Generations    int          `json:"generations"`
	EliteCount     int          `json:"elite_count"`
	Selection      string       `json:"selection"`
	FitnessGoal    float64      `json:"fitness_goal,omitempty"`
	FixedCourse    bool         `json:"fixed_course"`
	InputScale     float64      `json:"input_scale"`
	Engine         scape.Config `json:"engine"`
}

type RunArtifacts struct {
	Config                RunConfig
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalBestFitness      float64
	BestScore             int
	StopReason            string
	TopGenomes            []model.TopGenomeRecord
	Lineage               []model.LineageRecord
}

type fitnessHistoryFile struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
	BestScore        int       `json:"best_score"`
	StopReason       string    `json:"stop_reason"`
}

// WriteRunArtifacts writes one directory per run under baseDir and returns
// its path. Empty slices are written as [] rather than null.
func WriteRunArtifacts(baseDir string, a RunArtifacts) (string, error) {
	if a.Config.RunID == "" {
		return "", errors.New("run id is required")
	}
	runDir := filepath.Join(baseDir, a.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	diagnostics := orEmpty(a.GenerationDiagnostics)
	writers := map[string]func(string) error{
		configFile: func(p string) error { return writeJSON(p, a.Config) },
		fitnessFile: func(p string) error {
			return writeJSON(p, fitnessHistoryFile{
				BestByGeneration: orEmpty(a.BestByGeneration),
				FinalBestFitness: a.FinalBestFitness,
				BestScore:        a.BestScore,
				StopReason:       a.StopReason,
			})
		},
		diagnosticsFile:    func(p string) error { return writeJSON(p, diagnostics) },
		diagnosticsCSVFile: func(p string) error { return writeDiagnosticsCSV(p, diagnostics) },
		topGenomesFile:     func(p string) error { return writeJSON(p, orEmpty(a.TopGenomes)) },
		lineageFile:        func(p string) error { return writeJSON(p, orEmpty(a.Lineage)) },
	}
	for _, name := range runFiles {
		if err := writers[name](filepath.Join(runDir, name)); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return runDir, nil
}

// ExportRunArtifacts copies a run directory into outDir/<runID>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", errors.New("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, name := range runFiles {
		if err := copyFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadTopGenomes(baseDir, runID string) ([]model.TopGenomeRecord, bool, error) {
	var top []model.TopGenomeRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, topGenomesFile), &top)
	return top, ok, err
}

func orEmpty[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

// readJSON reports ok=false without an error when path does not exist.
func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
