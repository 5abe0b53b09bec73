// Package notify carries terminal-state notifications to operators.
// Real delivery channels (mail, IM) live outside this module; the engine
// calls export.Notifier and logs failures.
package notify

import (
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/export"
)

// LogNotifier writes notifications to the log. It is the default channel
// when no real sender is wired in.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the terminal result.
func (n *LogNotifier) Notify(record *export.Record, result *export.Result) error {
	n.logger.Infow("Export finished",
		"register_id", record.ID,
		"task_code", record.TaskCode,
		"operator", record.OperateBy,
		"channel", record.NotifyChannel,
		"locale", record.Locale,
		"status", result.Status,
		"file_url", result.FileURL,
		"error_msg", result.ErrorMsg,
	)
	return nil
}
