package taxrules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoSources is returned by Sync when the syncer has no sources configured.
var ErrNoSources = errors.New("no rule sources configured")

// Syncer loads rule bundles from an ordered list of sources and installs the
// first one that validates into a Store. Later sources are fallbacks: a
// deployment normally lists its primary source followed by EmbeddedSource.
type Syncer struct {
	sources []Source
	store   *Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer creates a Syncer that tries sources in order.
func NewSyncer(store *Store, logger *slog.Logger, sources ...Source) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		sources: sources,
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sync performs one reload. On success the new snapshot is swapped into the
// store and the result describes it. If every source fails the current
// snapshot stays in place and the result carries the joined errors.
func (s *Syncer) Sync(ctx context.Context) SyncResult {
	now := s.now()
	if len(s.sources) == 0 {
		return SyncResult{SyncedAt: now, Error: ErrNoSources}
	}

	s.logger.Info("starting rule sync", "sources", len(s.sources))

	var errs []error
	for _, src := range s.sources {
		next, err := s.load(ctx, src)
		if err != nil {
			s.logger.Warn("rule source failed",
				"source", src.Name(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		return s.install(src.Name(), next, now)
	}

	s.logger.Error("all rule sources failed, keeping current rules",
		"current_version", s.currentVersion(),
	)
	return SyncResult{
		SyncedAt: now,
		Error:    fmt.Errorf("all rule sources failed: %w", errors.Join(errs...)),
	}
}

func (s *Syncer) load(ctx context.Context, src Source) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(b)
}

func (s *Syncer) install(source string, next *Snapshot, now time.Time) SyncResult {
	prev := s.store.Snapshot()
	changes := DiffRates(prev, next)

	switch {
	case prev == nil:
		s.logger.Info("initial rules loaded", "version", next.Version())
	case prev.Version() == next.Version():
		s.logger.Info("no rule changes detected", "version", next.Version())
	default:
		s.logger.Info("rule changes detected",
			"old_version", prev.Version(),
			"new_version", next.Version(),
			"rates_changed", len(changes),
		)
		for _, ch := range changes {
			s.logger.Info("rate changed",
				"postal_code", ch.PostalCode,
				"level", string(ch.Level),
				"name", ch.Name,
				"old_rate", ch.OldRate.String(),
				"new_rate", ch.NewRate.String(),
			)
		}
	}

	s.store.Swap(next)

	return SyncResult{
		Source:        source,
		Version:       next.Version(),
		Jurisdictions: next.JurisdictionCount(),
		States:        next.StateCount(),
		RatesChanged:  len(changes),
		SyncedAt:      now,
	}
}

func (s *Syncer) currentVersion() string {
	if snap := s.store.Snapshot(); snap != nil {
		return snap.Version()
	}
	return ""
}
