package export

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a terminal result to whoever registered the export.
// Errors are logged by the coordinator and never abort the execution path.
type Notifier interface {
	Notify(record *Record, result *Result) error
}

// cacheCandidateLimit bounds how many prior success records the cache
// lookup inspects per execution.
const cacheCandidateLimit = 20

// Coordinator owns the execution of one claimed record: the conditional
// claim, hooks, cache lookup, pipeline run, and the terminal state write.
// It may be invoked concurrently for the same record id from the message
// consumer, a direct call, and the compensation scanner; the store's
// compare and swap is the only mutual exclusion.
type Coordinator struct {
	store    *Store
	registry *Registry
	matcher  *CacheMatcher
	pipeline *Pipeline
	hooks    *HookChain
	notifier Notifier
	logger   *zap.SugaredLogger
}

// NewCoordinator creates an execution coordinator. notifier may be nil.
func NewCoordinator(store *Store, registry *Registry, matcher *CacheMatcher, pipeline *Pipeline, hooks *HookChain, notifier Notifier, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		store:    store,
		registry: registry,
		matcher:  matcher,
		pipeline: pipeline,
		hooks:    hooks,
		notifier: notifier,
		logger:   logger.Named("coordinator"),
	}
}

// ExecuteByID claims and executes a record. Idempotent from the caller's
// perspective: a duplicate or concurrent call observes the rejected
// result without touching the running execution.
func (c *Coordinator) ExecuteByID(ctx context.Context, registerID int64) *Result {
	record, err := c.store.FindRecordByID(registerID)
	if err != nil {
		c.logger.Warnw("Claim skipped, record lookup failed",
			"register_id", registerID,
			"error", err,
		)
		return RejectedResult(registerID)
	}
	if record.Status != StatusPending {
		return RejectedResult(registerID)
	}

	spec := c.registry.Get(record.TaskCode)
	if spec == nil {
		c.logger.Errorw("No job spec registered for task code",
			"register_id", registerID,
			"task_code", record.TaskCode,
		)
		return RejectedResult(registerID)
	}

	affected, err := c.store.RefreshStatus(registerID, StatusPending, StatusExecuting, "system")
	if err != nil {
		c.logger.Errorw("Claim failed against store",
			"register_id", registerID,
			"error", err,
		)
		return RejectedResult(registerID)
	}
	if affected == 0 {
		// Another path won the claim; normal outcome, not an error.
		return RejectedResult(registerID)
	}
	record.Status = StatusExecuting

	return c.execute(ctx, spec, record)
}

// execute runs the claimed record to a terminal state.
func (c *Coordinator) execute(ctx context.Context, spec *JobSpec, record *Record) *Result {
	c.hooks.RunBefore(record)

	reporter := NewProgressReporter(c.store, record.ID, c.logger)
	reporter.Start()

	result := c.resultFromCache(spec, record)
	if result == nil {
		result = c.runPipeline(ctx, spec, record, reporter)
	}
	if result.Status == StatusSuccess {
		reporter.Complete()
	}

	c.hooks.RunAfter(record, result)

	if record.NotifyEnabled && c.notifier != nil {
		if err := c.notifier.Notify(record, result); err != nil {
			c.logger.Warnw("Notification failed",
				"register_id", record.ID,
				"error", err,
			)
		}
	}

	return result
}

// resultFromCache short-circuits execution when a prior success record's
// artifact is reusable. Returns nil to fall through to real generation,
// including when the conditional metadata copy loses a race.
func (c *Coordinator) resultFromCache(spec *JobSpec, record *Record) *Result {
	if !spec.EnableCache {
		return nil
	}

	current, err := record.Params()
	if err != nil {
		c.logger.Debugw("Cache lookup skipped, current params unparseable",
			"register_id", record.ID,
			"error", err,
		)
		return nil
	}

	candidates, err := c.store.FindRecentSuccesses(record.AppID, record.TaskCode, cacheCandidateLimit)
	if err != nil {
		c.logger.Warnw("Cache lookup failed",
			"register_id", record.ID,
			"error", err,
		)
		return nil
	}

	for _, candidate := range candidates {
		if !c.matcher.Match(spec.CacheKeys, candidate, current) {
			continue
		}

		status := StatusSuccess
		from := StatusExecuting
		affected, err := c.store.ChangeUploadInfo(record.ID, UploadInfoChange{
			Status:     &status,
			FileURL:    &candidate.FileURL,
			FileName:   &candidate.FileName,
			FileSystem: &candidate.FileSystem,
			UpdateBy:   "system",
			FromStatus: &from,
		})
		if err != nil {
			c.logger.Warnw("Cache metadata copy failed",
				"register_id", record.ID,
				"cache_record_id", candidate.ID,
				"error", err,
			)
			return nil
		}
		if affected == 0 {
			// Status already advanced under us; fall through to real
			// execution rather than trusting a stale copy.
			return nil
		}

		c.logger.Infow("Cache hit, reusing prior artifact",
			"register_id", record.ID,
			"cache_record_id", candidate.ID,
			"file_url", candidate.FileURL,
		)
		return &Result{
			RegisterID: record.ID,
			Status:     StatusSuccess,
			FileSystem: candidate.FileSystem,
			FileURL:    candidate.FileURL,
			FileName:   candidate.FileName,
		}
	}
	return nil
}

// runPipeline executes generation plus upload and writes the terminal
// state. Whatever happens in the pipeline ends as a structured result.
func (c *Coordinator) runPipeline(ctx context.Context, spec *JobSpec, record *Record, reporter *ProgressReporter) *Result {
	info, err := record.RequestInfo()
	if err != nil {
		return c.writeTerminal(record, nil, err)
	}

	meta, err := c.pipeline.HandleWithRetry(ctx, spec, record, info, reporter)
	return c.writeTerminal(record, meta, err)
}

// writeTerminal persists the terminal state for a finished execution.
// A conditional-update miss here is a loud persistence error: the record
// may be stuck in executing and needs operational attention.
func (c *Coordinator) writeTerminal(record *Record, meta *FileMeta, execErr error) *Result {
	from := StatusExecuting
	var change UploadInfoChange
	var result *Result

	if execErr == nil {
		status := StatusSuccess
		change = UploadInfoChange{
			Status:     &status,
			FileURL:    &meta.URL,
			FileName:   &meta.FileName,
			FileSystem: &meta.System,
			UpdateBy:   "system",
			FromStatus: &from,
		}
		result = &Result{
			RegisterID: record.ID,
			Status:     StatusSuccess,
			FileSystem: meta.System,
			FileURL:    meta.URL,
			FileName:   meta.FileName,
		}
	} else {
		status := StatusFailed
		errMsg := TruncateErrorMsg(execErr.Error())
		system := "none"
		change = UploadInfoChange{
			Status:     &status,
			FileSystem: &system,
			ErrorMsg:   &errMsg,
			UpdateBy:   "system",
			FromStatus: &from,
		}
		result = &Result{
			RegisterID: record.ID,
			Status:     StatusFailed,
			FileSystem: system,
			ErrorMsg:   errMsg,
		}
		c.logger.Warnw("Export failed",
			"register_id", record.ID,
			"task_code", record.TaskCode,
			"error", execErr,
		)
	}

	affected, err := c.store.ChangeUploadInfo(record.ID, change)
	if err != nil {
		c.logger.Errorw("Terminal state write failed",
			"register_id", record.ID,
			"status", result.Status,
			"error", err,
		)
	} else if affected == 0 {
		c.logger.Errorw("Terminal state write affected no rows, record may be stuck in executing",
			"register_id", record.ID,
			"status", result.Status,
		)
	}

	return result
}
