package taxrules

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Syncable is the part of Syncer the scheduler drives.
type Syncable interface {
	Sync(ctx context.Context) SyncResult
}

// SchedulerConfig controls the reload cadence.
type SchedulerConfig struct {
	Interval    time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	SyncTimeout time.Duration
}

// DefaultSchedulerConfig reloads hourly and retries a failed reload three
// times, five minutes apart.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    time.Hour,
		MaxRetries:  3,
		RetryDelay:  5 * time.Minute,
		SyncTimeout: time.Minute,
	}
}

// Scheduler runs a sync on startup and then on a fixed interval.
type Scheduler struct {
	syncer Syncable
	cfg    SchedulerConfig
	logger *slog.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewScheduler creates a rule reload scheduler.
func NewScheduler(syncer Syncable, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSchedulerConfig().SyncTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer: syncer,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start runs an initial sync with ctx and then starts the reload loop in a
// goroutine. It returns the initial result so the caller can decide whether
// to serve without rules.
func (s *Scheduler) Start(ctx context.Context) SyncResult {
	s.logger.Info("running initial rule sync on startup")
	result := s.syncer.Sync(ctx)
	s.logResult("initial rule sync", result)

	s.wg.Add(1)
	go s.loop()
	return result
}

// Stop signals the scheduler to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.logger.Info("stopping rule sync scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.logger.Info("rule sync scheduler started", "interval", s.cfg.Interval.String())

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.runSync() {
				s.retrySync()
			}
		case <-s.stopCh:
			s.logger.Info("rule sync scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runSync() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	defer cancel()

	result := s.syncer.Sync(ctx)
	s.logResult("scheduled rule sync", result)
	return result.Error == nil
}

// retrySync attempts the sync up to MaxRetries times, RetryDelay apart. It
// respects the stop signal.
func (s *Scheduler) retrySync() {
	for i := 1; i <= s.cfg.MaxRetries; i++ {
		s.logger.Info("rule sync retry scheduled",
			"attempt", i,
			"max_retries", s.cfg.MaxRetries,
			"delay", s.cfg.RetryDelay.String(),
		)

		select {
		case <-time.After(s.cfg.RetryDelay):
		case <-s.stopCh:
			s.logger.Info("rule sync retry cancelled: scheduler stopping")
			return
		}

		if s.runSync() {
			return
		}
	}

	if s.cfg.MaxRetries > 0 {
		s.logger.Error("all rule sync retries exhausted", "max_retries", s.cfg.MaxRetries)
	}
}

func (s *Scheduler) logResult(what string, result SyncResult) {
	if result.Error != nil {
		s.logger.Error(what+" failed", "error", result.Error)
		return
	}
	s.logger.Info(what+" completed",
		"source", result.Source,
		"version", result.Version,
		"jurisdictions", result.Jurisdictions,
		"states", result.States,
		"rates_changed", result.RatesChanged,
	)
}
