package config

import (
	"fmt"

	"github.com/marmos91/dittodrive/internal/ratelimiter"
	"github.com/marmos91/dittodrive/pkg/drive"
	"github.com/marmos91/dittodrive/pkg/importer"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// DriveOptions builds the drive service options from the namespace section.
//
// Node ids come from the nanoid generator.
func DriveOptions(cfg *Config, m *MetricsResult) (drive.Options, error) {
	rules, err := namespace.NewNameRules(cfg.Namespace.NamePattern, cfg.Namespace.NameMaxLength)
	if err != nil {
		return drive.Options{}, fmt.Errorf("namespace.name_pattern: %w", err)
	}

	mode, ok := namespace.ParseMatchMode(cfg.Namespace.SearchMode)
	if !ok {
		return drive.Options{}, fmt.Errorf("namespace.search_mode: unknown mode %q", cfg.Namespace.SearchMode)
	}

	ids, err := namespace.NewNanoIDGenerator()
	if err != nil {
		return drive.Options{}, err
	}

	opts := drive.Options{
		IDs:        ids,
		NameRules:  rules,
		SearchMode: mode,
		Backend:    cfg.Store.Type,
	}
	if m != nil {
		opts.Metrics = m.Namespace
	}
	return opts, nil
}

// ImporterOptions builds importer options from the importer section.
func ImporterOptions(cfg *Config, m *MetricsResult) importer.Options {
	opts := importer.Options{
		MaxItems: cfg.Importer.MaxBatchItems,
		Limiter:  ratelimiter.New(cfg.Importer.Rate, cfg.Importer.Burst),
	}
	if m != nil {
		opts.Metrics = m.Import
	}
	return opts
}
