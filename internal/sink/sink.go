// Package sink writes shaped similarity reports to their destinations.
package sink

import (
	"context"
	"errors"

	"moviesims/internal/config"
	"moviesims/pkg/types"
)

// Sink receives a full report. Records arrive in report order.
type Sink interface {
	Write(ctx context.Context, records []types.NamedSimilarity) error
	Close() error
}

// Multi fans one report out to several sinks, stopping at the first error.
type Multi []Sink

func (m Multi) Write(ctx context.Context, records []types.NamedSimilarity) error {
	for _, s := range m {
		if err := s.Write(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// FromConfig opens every sink enabled in cfg. On error the sinks opened so
// far are closed.
func FromConfig(ctx context.Context, cfg config.OutputConfig) (Multi, error) {
	var m Multi
	fail := func(err error) (Multi, error) {
		m.Close()
		return nil, err
	}

	if cfg.TSVPath != "" {
		t, err := CreateTSV(cfg.TSVPath)
		if err != nil {
			return fail(err)
		}
		m = append(m, t)
	}
	if cfg.SQLitePath != "" {
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fail(err)
		}
		m = append(m, s)
	}
	if cfg.MongoURI != "" {
		mg, err := ConnectMongo(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		m = append(m, mg)
	}
	return m, nil
}
