package secondread

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// inserter is implemented by stores that can persist a reading verbatim.
type inserter interface {
	Get(ctx context.Context, id string) (*Reading, error)
	List(ctx context.Context, status Status, limit int) ([]*Reading, error)
	insert(ctx context.Context, r *Reading) error
}

func exportJSON(ctx context.Context, s inserter, writer io.Writer) error {
	all, err := s.List(ctx, "", maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list readings: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Readings:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, s inserter, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.Readings {
		if r == nil || r.ID == "" {
			skipped++
			continue
		}
		existing, err := s.Get(ctx, r.ID)
		if err == nil && existing != nil {
			skipped++
			continue
		}

		if err := s.insert(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
