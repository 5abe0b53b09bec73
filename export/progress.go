package export

import (
	"go.uber.org/zap"
)

// ProgressReporter pushes execution progress for one record. Every write
// is best-effort: store failures are logged and never propagate into the
// execution path. The store's bound check keeps stale updates from
// regressing a finished record.
type ProgressReporter struct {
	store      *Store
	registerID int64
	logger     *zap.SugaredLogger
}

// NewProgressReporter binds a reporter to a register id.
func NewProgressReporter(store *Store, registerID int64, logger *zap.SugaredLogger) *ProgressReporter {
	return &ProgressReporter{
		store:      store,
		registerID: registerID,
		logger:     logger.Named("progress"),
	}
}

// Start resets progress to 0 at the beginning of an execution.
func (p *ProgressReporter) Start() {
	p.write(0, 100)
}

// Report pushes an intermediate progress value, clamped to 0-99 so only
// Complete can write the terminal 100. The stored value is used as its
// own bound, so out-of-order reports never move progress backwards.
func (p *ProgressReporter) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}
	p.write(percent, percent)
}

// Complete writes the terminal 100.
func (p *ProgressReporter) Complete() {
	p.write(100, 100)
}

func (p *ProgressReporter) write(percent, bound int) {
	if _, err := p.store.UpdateProgress(p.registerID, percent, bound); err != nil {
		p.logger.Warnw("Progress update failed",
			"register_id", p.registerID,
			"progress", percent,
			"error", err,
		)
	}
}
