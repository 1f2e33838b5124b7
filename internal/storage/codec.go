package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"flapneat/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Kind names a per-run artifact. Every backend keys artifacts by run id and
// kind and stores them as JSON payloads.
type Kind string

const (
	KindFitnessHistory Kind = "fitness_history"
	KindDiagnostics    Kind = "diagnostics"
	KindTopGenomes     Kind = "top_genomes"
	KindLineage        Kind = "lineage"
)

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// decode unmarshals data into T and rejects records written by another
// schema or codec version.
func decode[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, checkVersions(out)
}

func checkVersions(v any) error {
	switch rec := v.(type) {
	case model.Genome:
		return versionErr(rec.VersionedRecord, "genome "+rec.ID)
	case model.RunRecord:
		return versionErr(rec.VersionedRecord, "run "+rec.ID)
	case []model.LineageRecord:
		for _, r := range rec {
			if err := versionErr(r.VersionedRecord, "lineage of "+r.GenomeID); err != nil {
				return err
			}
		}
	case []model.TopGenomeRecord:
		for _, r := range rec {
			if err := versionErr(r.Genome.VersionedRecord, fmt.Sprintf("top genome rank %d", r.Rank)); err != nil {
				return err
			}
		}
	}
	return nil
}

func versionErr(v model.VersionedRecord, what string) error {
	if v.SchemaVersion == CurrentSchemaVersion && v.CodecVersion == CurrentCodecVersion {
		return nil
	}
	return fmt.Errorf("%s: %w (schema=%d codec=%d)", what, ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
}

// blobStore is the per-run artifact primitive both backends provide.
type blobStore interface {
	putArtifact(ctx context.Context, runID string, kind Kind, payload []byte) error
	getArtifact(ctx context.Context, runID string, kind Kind) ([]byte, bool, error)
}

func saveArtifact(ctx context.Context, s blobStore, runID string, kind Kind, v any) error {
	payload, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", kind, runID, err)
	}
	return s.putArtifact(ctx, runID, kind, payload)
}

func loadArtifact[T any](ctx context.Context, s blobStore, runID string, kind Kind) (T, bool, error) {
	var zero T
	payload, ok, err := s.getArtifact(ctx, runID, kind)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := decode[T](payload)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s for %s: %w", kind, runID, err)
	}
	return out, true, nil
}
