package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender re-dispatches a trigger during compensation. The Dispatcher
// implements it; tests use a fake.
type Sender interface {
	Send(registerID int64) error
}

// ScannerConfig tunes the compensation scanner.
type ScannerConfig struct {
	Interval        time.Duration // how often the sweeps run
	WaitingTimeout  time.Duration // waiting window before a trigger counts as stuck
	LookBack        time.Duration // how far back the candidate sweep reaches
	MaxTriggerCount int           // cap on dispatches per register id
	BatchSize       int           // max candidates per sweep
}

// Scanner periodically expires stuck waiting windows and re-dispatches
// pending records whose trigger was lost. It never marks a record failed;
// only the coordinator writes terminal states.
type Scanner struct {
	store  *Store
	sender Sender
	cfg    ScannerConfig
	logger *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanner creates a compensation scanner.
func NewScanner(store *Store, sender Sender, cfg ScannerConfig, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger.Named("scanner"),
	}
}

// Start launches the scan loop in the background.
func (s *Scanner) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Infow("Compensation scanner started",
		"interval", s.cfg.Interval,
		"look_back", s.cfg.LookBack,
	)
}

// Stop cancels the loop and waits for the current sweep to finish.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one compensation pass: expire stuck waiting windows, then
// re-dispatch compensable records. Transient errors are logged and the
// sweep simply runs again on the next tick.
func (s *Scanner) Sweep() {
	expired, err := s.store.ExpireWaiting(s.cfg.WaitingTimeout)
	if err != nil {
		s.logger.Warnw("Waiting-expiration sweep failed", "error", err)
	} else if expired > 0 {
		s.logger.Infow("Expired stuck waiting triggers", "count", expired)
	}

	ids, err := s.store.ListCompensable(s.cfg.LookBack, s.cfg.MaxTriggerCount, s.cfg.BatchSize)
	if err != nil {
		s.logger.Warnw("Compensation candidate sweep failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := s.sender.Send(id); err != nil {
			// Still a candidate on the next scan.
			s.logger.Warnw("Compensation dispatch failed",
				"register_id", id,
				"error", err,
			)
			continue
		}
		s.logger.Infow("Compensated lost trigger", "register_id", id)
	}
}
