package export

import (
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

// TriggerSender dispatches the asynchronous trigger for a freshly
// registered record. Send failures are non-fatal; the compensation
// scanner re-dispatches lost triggers.
type TriggerSender interface {
	Send(registerID int64) error
}

// Service is the caller-facing surface: registration, result queries,
// cancel, and download accounting.
type Service struct {
	store    *Store
	registry *Registry
	limiter  Limiter
	sender   TriggerSender
	appID    string
	logger   *zap.SugaredLogger
}

// NewService creates the export service. sender may be nil when triggers
// are dispatched externally; limiter may be nil to disable rate limiting.
func NewService(store *Store, registry *Registry, limiter Limiter, sender TriggerSender, appID string, logger *zap.SugaredLogger) *Service {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	return &Service{
		store:    store,
		registry: registry,
		limiter:  limiter,
		sender:   sender,
		appID:    appID,
		logger:   logger.Named("service"),
	}
}

// RegisterTasks upserts a task definition for every registered job spec.
// Run once at startup so registration never races a missing definition.
func (s *Service) RegisterTasks() error {
	for _, code := range s.registry.Codes() {
		spec := s.registry.Get(code)
		if err := s.store.UpsertTask(s.appID, spec.Code, spec.Description); err != nil {
			return errors.Wrapf(err, "register task %s", spec.Code)
		}
	}
	s.logger.Infow("Task definitions registered",
		"app_id", s.appID,
		"count", len(s.registry.Codes()),
	)
	return nil
}

// Register creates a pending record for an export request and dispatches
// its trigger. Returns the assigned register id.
func (s *Service) Register(req *RegisterRequest) (int64, error) {
	if req.AppID == "" {
		req.AppID = s.appID
	}

	spec := s.registry.Get(req.TaskCode)
	if spec == nil {
		return 0, errors.Mark(errors.Newf("no job spec for task code %s", req.TaskCode), ErrTaskNotFound)
	}
	if !s.limiter.Allow(req.TaskCode) {
		return 0, errors.Mark(errors.Newf("registration of %s refused by limiter", req.TaskCode), ErrRateLimited)
	}

	task, err := s.store.FindTask(req.AppID, req.TaskCode)
	if err != nil {
		return 0, err
	}

	if req.FileSuffix == "" {
		req.FileSuffix = spec.FileSuffix
	}
	if req.MaxServerRetry == 0 {
		req.MaxServerRetry = spec.MaxServerRetry
	}

	record, err := NewRecord(task, req, spec.NotifyEnabled, spec.NotifyChannel)
	if err != nil {
		return 0, err
	}

	id, err := s.store.InsertRecord(record)
	if err != nil {
		return 0, err
	}

	s.logger.Infow("Export registered",
		"register_id", id,
		"task_code", req.TaskCode,
		"operator", req.OperateBy,
	)

	if s.sender != nil {
		if err := s.sender.Send(id); err != nil {
			// Non-fatal: the record stays eligible for compensation.
			s.logger.Warnw("Trigger dispatch failed, compensation will retry",
				"register_id", id,
				"error", err,
			)
		}
	}

	return id, nil
}

// GetResult returns the structured outcome for a register id.
func (s *Service) GetResult(registerID int64) (*Result, error) {
	record, err := s.store.FindRecordByID(registerID)
	if err != nil {
		return nil, err
	}
	return &Result{
		RegisterID: record.ID,
		Status:     record.Status,
		FileSystem: record.FileSystem,
		FileURL:    record.FileURL,
		FileName:   record.FileName,
		ErrorMsg:   record.ErrorMsg,
	}, nil
}

// RequestInfo rebuilds the original export request for a register id, for
// the consumer side of a trigger message.
func (s *Service) RequestInfo(registerID int64) (*RequestInfo, error) {
	record, err := s.store.FindRecordByID(registerID)
	if err != nil {
		return nil, err
	}
	return record.RequestInfo()
}

// Cancel moves a pending record to cancelled. Once executing, the run
// goes to completion; cancellation is a registration-time courtesy only.
func (s *Service) Cancel(registerID int64, actor string) (*CancelResult, error) {
	record, err := s.store.FindRecordByID(registerID)
	if errors.Is(err, ErrRecordNotFound) {
		return &CancelResult{OK: false, Reason: "record not found"}, nil
	}
	if err != nil {
		return nil, err
	}
	if record.Status != StatusPending {
		return &CancelResult{OK: false, Reason: "record is not pending"}, nil
	}

	affected, err := s.store.RefreshStatus(registerID, StatusPending, StatusCancelled, actor)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return &CancelResult{OK: false, Reason: "record is not pending"}, nil
	}

	s.logger.Infow("Export cancelled",
		"register_id", registerID,
		"actor", actor,
	)
	return &CancelResult{OK: true}, nil
}

// Download returns the artifact URL and bumps the download counter.
// Only success records are downloadable.
func (s *Service) Download(registerID int64) (string, error) {
	record, err := s.store.FindRecordByID(registerID)
	if err != nil {
		return "", err
	}
	if record.Status != StatusSuccess {
		return "", errors.Newf("record %d is %s, not downloadable", registerID, record.Status)
	}

	affected, err := s.store.IncrementDownloadCount(registerID)
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", errors.Newf("record %d is no longer downloadable", registerID)
	}
	return record.FileURL, nil
}

// List returns a page of records matching the filter, newest first.
func (s *Service) List(filter *RecordFilter, limit, offset int) ([]*Record, error) {
	return s.store.ListRecords(filter, limit, offset)
}

// Count returns the number of records matching the filter.
func (s *Service) Count(filter *RecordFilter) (int, error) {
	return s.store.CountRecords(filter)
}
