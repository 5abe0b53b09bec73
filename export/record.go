// Package export provides asynchronous file-export execution: registered
// records move through a status state machine guarded by conditional
// updates, a generation pipeline produces and uploads the artifact, and a
// result cache short-circuits repeated exports of identical requests.
package export

import (
	"encoding/json"
	"time"

	"github.com/svnlab/easy-file/errors"
)

// Status represents the current state of an execution record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusExecuting, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further status transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// MaxErrorMsgLen bounds error_msg as stored; longer messages are truncated.
const MaxErrorMsgLen = 512

// TaskDef is a task definition row, one per (app id, task code).
type TaskDef struct {
	ID               int64     `json:"id"`
	AppID            string    `json:"app_id"`
	TaskCode         string    `json:"task_code"`
	TaskDesc         string    `json:"task_desc"`
	EnableStatus     int       `json:"enable_status"`
	LimitingStrategy string    `json:"limiting_strategy"`
	Version          int       `json:"version"`
	IsDeleted        int       `json:"is_deleted"`
	CreateTime       time.Time `json:"create_time"`
	UpdateTime       time.Time `json:"update_time"`
	CreateBy         string    `json:"create_by"`
	UpdateBy         string    `json:"update_by"`
}

// Record is one execution attempt-group of a registered export.
type Record struct {
	ID              int64      `json:"id"`
	TaskID          int64      `json:"task_id"`
	AppID           string     `json:"app_id"`
	TaskCode        string     `json:"task_code"`
	Status          Status     `json:"status"`
	FileURL         string     `json:"file_url"`
	FileName        string     `json:"file_name"`
	FileSystem      string     `json:"file_system"`
	OperateBy       string     `json:"operate_by"`
	OperateName     string     `json:"operate_name"`
	Remark          string     `json:"remark"`
	NotifyEnabled   bool       `json:"notify_enabled"`
	NotifyChannel   string     `json:"notify_channel"`
	MaxServerRetry  int        `json:"max_server_retry"`
	CurrentRetry    int        `json:"current_retry"`
	DownloadCount   int        `json:"download_count"`
	ExecuteProgress int        `json:"execute_progress"`
	ExecuteParam    string     `json:"execute_param"`
	ErrorMsg        string     `json:"error_msg"`
	LastExecuteTime *time.Time `json:"last_execute_time,omitempty"`
	InvalidTime     *time.Time `json:"invalid_time,omitempty"`
	Version         int        `json:"version"`
	CreateTime      time.Time  `json:"create_time"`
	UpdateTime      time.Time  `json:"update_time"`
	CreateBy        string     `json:"create_by"`
	UpdateBy        string     `json:"update_by"`
	Locale          string     `json:"locale"`
}

// RegisterRequest carries everything needed to create a new record.
type RegisterRequest struct {
	AppID          string         `json:"app_id"`
	TaskCode       string         `json:"task_code"`
	OperateBy      string         `json:"operate_by"`
	OperateName    string         `json:"operate_name"`
	FileSuffix     string         `json:"file_suffix"`
	Remark         string         `json:"remark"`
	MaxServerRetry int            `json:"max_server_retry"`
	Params         map[string]any `json:"params"`
	Locale         string         `json:"locale"`
}

// RequestInfo is the serialized form of a registration request stored in
// execute_param, enough to rebuild the export request when the trigger
// message arrives on another process.
type RequestInfo struct {
	FileSuffix string         `json:"file_suffix"`
	Params     map[string]any `json:"params"`
}

// NewRecord builds a pending record from a registration request.
// The request is serialized as an opaque JSON blob so the consumer side
// and the cache matcher can rebuild the original request later.
func NewRecord(task *TaskDef, req *RegisterRequest, notifyEnabled bool, notifyChannel string) (*Record, error) {
	paramJSON, err := json.Marshal(RequestInfo{
		FileSuffix: req.FileSuffix,
		Params:     req.Params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal execute params")
	}

	actor := req.OperateBy
	if actor == "" {
		actor = "system"
	}

	now := time.Now()
	return &Record{
		TaskID:         task.ID,
		AppID:          req.AppID,
		TaskCode:       req.TaskCode,
		Status:         StatusPending,
		FileSystem:     "none",
		OperateBy:      req.OperateBy,
		OperateName:    req.OperateName,
		Remark:         req.Remark,
		NotifyEnabled:  notifyEnabled,
		NotifyChannel:  notifyChannel,
		MaxServerRetry: req.MaxServerRetry,
		ExecuteParam:   string(paramJSON),
		Version:        1,
		CreateTime:     now,
		UpdateTime:     now,
		CreateBy:       actor,
		UpdateBy:       actor,
		Locale:         req.Locale,
	}, nil
}

// RequestInfo re-parses the stored execute_param blob. An empty blob
// yields an empty request.
func (r *Record) RequestInfo() (*RequestInfo, error) {
	if r.ExecuteParam == "" {
		return &RequestInfo{Params: map[string]any{}}, nil
	}
	var info RequestInfo
	if err := json.Unmarshal([]byte(r.ExecuteParam), &info); err != nil {
		return nil, errors.Wrapf(err, "parse execute params of record %d", r.ID)
	}
	if info.Params == nil {
		info.Params = map[string]any{}
	}
	return &info, nil
}

// Params re-parses just the original parameter map, used by the cache
// matcher.
func (r *Record) Params() (map[string]any, error) {
	info, err := r.RequestInfo()
	if err != nil {
		return nil, err
	}
	return info.Params, nil
}

// Result is the structured outcome handed to the caller. Failure is always
// a result value with a truncated message, never a raw error.
type Result struct {
	RegisterID int64  `json:"register_id"`
	Status     Status `json:"status"`
	FileSystem string `json:"file_system"`
	FileURL    string `json:"file_url"`
	FileName   string `json:"file_name"`
	ErrorMsg   string `json:"error_msg,omitempty"`
}

// RejectedResult is what a duplicate or concurrent trigger observes when
// the claim fails: the record is already running or terminal.
func RejectedResult(registerID int64) *Result {
	return &Result{
		RegisterID: registerID,
		Status:     StatusFailed,
		FileSystem: "none",
		FileURL:    "",
	}
}

// CancelResult reports the outcome of a cancel attempt.
type CancelResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}
