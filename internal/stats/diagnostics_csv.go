package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"flapneat/internal/model"
)

type diagnosticsColumn struct {
	name  string
	value func(model.GenerationDiagnostics) string
	parse func(*model.GenerationDiagnostics, string) error
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func intColumn(name string, field func(*model.GenerationDiagnostics) *int) diagnosticsColumn {
	return diagnosticsColumn{
		name:  name,
		value: func(d model.GenerationDiagnostics) string { return strconv.Itoa(*field(&d)) },
		parse: func(d *model.GenerationDiagnostics, s string) (err error) {
			*field(d), err = strconv.Atoi(s)
			return err
		},
	}
}

func floatColumn(name string, field func(*model.GenerationDiagnostics) *float64) diagnosticsColumn {
	return diagnosticsColumn{
		name:  name,
		value: func(d model.GenerationDiagnostics) string { return formatFloat(*field(&d)) },
		parse: func(d *model.GenerationDiagnostics, s string) (err error) {
			*field(d), err = strconv.ParseFloat(s, 64)
			return err
		},
	}
}

var diagnosticsColumns = []diagnosticsColumn{
	intColumn("generation", func(d *model.GenerationDiagnostics) *int { return &d.Generation }),
	floatColumn("best_fitness", func(d *model.GenerationDiagnostics) *float64 { return &d.BestFitness }),
	floatColumn("mean_fitness", func(d *model.GenerationDiagnostics) *float64 { return &d.MeanFitness }),
	floatColumn("min_fitness", func(d *model.GenerationDiagnostics) *float64 { return &d.MinFitness }),
	intColumn("best_score", func(d *model.GenerationDiagnostics) *int { return &d.BestScore }),
	intColumn("ticks", func(d *model.GenerationDiagnostics) *int { return &d.Ticks }),
	{
		name:  "end_reason",
		value: func(d model.GenerationDiagnostics) string { return d.EndReason },
		parse: func(d *model.GenerationDiagnostics, s string) error { d.EndReason = s; return nil },
	},
	{
		name:  "course_seed",
		value: func(d model.GenerationDiagnostics) string { return strconv.FormatInt(d.CourseSeed, 10) },
		parse: func(d *model.GenerationDiagnostics, s string) (err error) {
			d.CourseSeed, err = strconv.ParseInt(s, 10, 64)
			return err
		},
	},
}

func writeDiagnosticsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	row := make([]string, len(diagnosticsColumns))
	for i, col := range diagnosticsColumns {
		row[i] = col.name
	}
	if err := w.Write(row); err != nil {
		return err
	}
	for _, d := range diagnostics {
		for i, col := range diagnosticsColumns {
			row[i] = col.value(d)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadDiagnosticsCSV reads the per-generation CSV of a run. A missing file
// is reported as ok=false.
func ReadDiagnosticsCSV(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, diagnosticsCSVFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(diagnosticsColumns)
	if _, err := r.Read(); err == io.EOF {
		return []model.GenerationDiagnostics{}, true, nil
	} else if err != nil {
		return nil, false, err
	}

	out := []model.GenerationDiagnostics{}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			return out, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		var d model.GenerationDiagnostics
		for i, col := range diagnosticsColumns {
			if err := col.parse(&d, record[i]); err != nil {
				return nil, false, fmt.Errorf("%s line %d column %s: %w", diagnosticsCSVFile, line, col.name, err)
			}
		}
		out = append(out, d)
	}
}
