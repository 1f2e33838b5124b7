package stats

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

const runIndexFile = "run_index.json"

// RunIndexEntry is one line of the run index kept next to the run
// directories. The index is what "latest" resolves against.
type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	EliteCount       int     `json:"elite_count"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestScore        int     `json:"best_score"`
	StopReason       string  `json:"stop_reason"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// AppendRunIndex adds entry, replacing any entry with the same run id in
// place.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return errors.New("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}
	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}
	if i := slices.IndexFunc(index, func(e RunIndexEntry) bool { return e.RunID == entry.RunID }); i >= 0 {
		index[i] = entry
	} else {
		index = append(index, entry)
	}
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first. Entries with equal
// timestamps keep reverse append order.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	slices.SortStableFunc(entries, func(a, b RunIndexEntry) int {
		switch {
		case a.CreatedAtUTC > b.CreatedAtUTC:
			return -1
		case a.CreatedAtUTC < b.CreatedAtUTC:
			return 1
		}
		return 0
	})
	return entries, nil
}

// LatestRunID returns the newest indexed run, or false when none exist.
func LatestRunID(baseDir string) (string, bool, error) {
	entries, err := ListRunIndex(baseDir)
	if err != nil || len(entries) == 0 {
		return "", false, err
	}
	return entries[0].RunID, true, nil
}

// ClearRunIndex removes the index file; run directories are left alone.
func ClearRunIndex(baseDir string) error {
	err := os.Remove(filepath.Join(baseDir, runIndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	if _, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
