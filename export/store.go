package export

import (
	"database/sql"
	"strings"
	"time"

	"github.com/svnlab/easy-file/errors"
)

// Store handles persistence of task definitions and execution records.
// The conditional updates here are the only concurrency primitive in the
// engine; no in-process or distributed lock exists anywhere else.
type Store struct {
	db *sql.DB
}

// NewStore creates a new export store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindTask retrieves a task definition by app id and task code.
// Returns ErrTaskNotFound if no live definition exists.
func (s *Store) FindTask(appID, taskCode string) (*TaskDef, error) {
	query := `SELECT id, app_id, task_code, task_desc, enable_status,
		limiting_strategy, version, is_deleted,
		create_time, update_time, create_by, update_by
		FROM export_task
		WHERE app_id = ? AND task_code = ? AND is_deleted = 0`

	var task TaskDef
	err := s.db.QueryRow(query, appID, taskCode).Scan(
		&task.ID, &task.AppID, &task.TaskCode, &task.TaskDesc,
		&task.EnableStatus, &task.LimitingStrategy, &task.Version,
		&task.IsDeleted, &task.CreateTime, &task.UpdateTime,
		&task.CreateBy, &task.UpdateBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("task %s/%s not found", appID, taskCode), ErrTaskNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find task")
	}

	return &task, nil
}

// UpsertTask creates the definition if absent, or refreshes the
// description when it changed. Other fields are never overwritten here.
func (s *Store) UpsertTask(appID, taskCode, taskDesc string) error {
	existing, err := s.FindTask(appID, taskCode)
	if errors.Is(err, ErrTaskNotFound) {
		now := time.Now()
		_, err := s.db.Exec(`
			INSERT INTO export_task (app_id, task_code, task_desc, create_time, update_time)
			VALUES (?, ?, ?, ?, ?)`,
			appID, taskCode, taskDesc, now, now,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert task %s/%s", appID, taskCode)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if existing.TaskDesc == taskDesc {
		return nil
	}
	_, err = s.db.Exec(`
		UPDATE export_task
		SET task_desc = ?, version = version + 1, update_time = ?
		WHERE id = ?`,
		taskDesc, time.Now(), existing.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to refresh task %s/%s", appID, taskCode)
	}
	return nil
}

// InsertRecord inserts a new execution record and returns its assigned id.
// The foreign key to export_task makes inserts for unknown tasks fail.
func (s *Store) InsertRecord(r *Record) (int64, error) {
	query := `
		INSERT INTO export_record (
			task_id, app_id, task_code, status,
			file_url, file_name, file_system,
			operate_by, operate_name, remark,
			notify_enabled, notify_channel,
			max_server_retry, current_retry, download_count,
			execute_progress, execute_param, error_msg,
			version, create_time, update_time, create_by, update_by, locale
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		r.TaskID, r.AppID, r.TaskCode, r.Status,
		r.FileURL, r.FileName, r.FileSystem,
		r.OperateBy, r.OperateName, r.Remark,
		r.NotifyEnabled, r.NotifyChannel,
		r.MaxServerRetry, r.CurrentRetry, r.DownloadCount,
		r.ExecuteProgress, r.ExecuteParam, r.ErrorMsg,
		r.Version, r.CreateTime, r.UpdateTime, r.CreateBy, r.UpdateBy, r.Locale,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get inserted record id")
	}
	r.ID = id
	return id, nil
}

// FindRecordByID retrieves a record by id.
// Returns ErrRecordNotFound if no row exists.
func (s *Store) FindRecordByID(id int64) (*Record, error) {
	query := `SELECT ` + StandardRecordSelectColumns() + ` FROM export_record WHERE id = ?`

	var r Record
	err := ScanRecordFromRow(s.db.QueryRow(query, id), &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("record %d not found", id), ErrRecordNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find record")
	}

	return &r, nil
}

// RefreshStatus transitions a record's status only if it still holds
// fromStatus. Returns the number of affected rows: 1 means the caller won
// the transition, 0 means another path got there first. This compare and
// swap is the single-flight guarantee for the whole engine.
func (s *Store) RefreshStatus(id int64, fromStatus, toStatus Status, actor string) (int64, error) {
	if actor == "" {
		actor = "system"
	}
	now := time.Now()

	var result sql.Result
	var err error
	if toStatus == StatusExecuting {
		result, err = s.db.Exec(`
			UPDATE export_record
			SET status = ?, update_by = ?, version = version + 1,
			    last_execute_time = ?, update_time = ?
			WHERE id = ? AND status = ?`,
			toStatus, actor, now, now, id, fromStatus,
		)
	} else {
		result, err = s.db.Exec(`
			UPDATE export_record
			SET status = ?, update_by = ?, version = version + 1, update_time = ?
			WHERE id = ? AND status = ?`,
			toStatus, actor, now, id, fromStatus,
		)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to refresh status of record %d", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// UploadInfoChange is a sparse update of a record's result fields. Only
// non-nil fields are written; version is always incremented.
type UploadInfoChange struct {
	Status      *Status
	FileURL     *string
	FileName    *string
	FileSystem  *string
	ErrorMsg    *string
	InvalidTime *time.Time
	UpdateBy    string

	// FromStatus, when set, makes the whole update conditional on the
	// stored status. Callers that need the copy-on-cache-hit race guard
	// check the returned affected-rows count.
	FromStatus *Status
}

// ChangeUploadInfo applies a sparse update and returns affected rows.
func (s *Store) ChangeUploadInfo(id int64, change UploadInfoChange) (int64, error) {
	sets := []string{"version = version + 1", "update_time = ?"}
	args := []interface{}{time.Now()}

	if change.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *change.Status)
	}
	if change.FileURL != nil {
		sets = append(sets, "file_url = ?")
		args = append(args, *change.FileURL)
	}
	if change.FileName != nil {
		sets = append(sets, "file_name = ?")
		args = append(args, *change.FileName)
	}
	if change.FileSystem != nil {
		sets = append(sets, "file_system = ?")
		args = append(args, *change.FileSystem)
	}
	if change.ErrorMsg != nil {
		sets = append(sets, "error_msg = ?")
		args = append(args, TruncateErrorMsg(*change.ErrorMsg))
	}
	if change.InvalidTime != nil {
		sets = append(sets, "invalid_time = ?")
		args = append(args, *change.InvalidTime)
	}
	if change.UpdateBy != "" {
		sets = append(sets, "update_by = ?")
		args = append(args, change.UpdateBy)
	}

	query := `UPDATE export_record SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if change.FromStatus != nil {
		query += ` AND status = ?`
		args = append(args, *change.FromStatus)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to change upload info of record %d", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// UpdateProgress writes execute_progress only while the stored value is
// still <= bound, so a stale update can never regress a finished record.
func (s *Store) UpdateProgress(id int64, progress, bound int) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE export_record
		SET execute_progress = ?, version = version + 1, update_time = ?
		WHERE id = ? AND execute_progress <= ?`,
		progress, time.Now(), id, bound,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to update progress of record %d", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// IncrementDownloadCount bumps download_count, guarded by success status.
func (s *Store) IncrementDownloadCount(id int64) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE export_record
		SET download_count = download_count + 1, version = version + 1, update_time = ?
		WHERE id = ? AND status = ?`,
		time.Now(), id, StatusSuccess,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to increment download count of record %d", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// FindRecentSuccesses returns the newest success records for a task code
// in an app, newest first. The cache matcher walks these as candidates.
func (s *Store) FindRecentSuccesses(appID, taskCode string, limit int) ([]*Record, error) {
	query := `SELECT ` + StandardRecordSelectColumns() + `
		FROM export_record
		WHERE app_id = ? AND task_code = ? AND status = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := s.db.Query(query, appID, taskCode, StatusSuccess, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find recent success records")
	}
	defer rows.Close()

	return scanRecords(rows, "success records")
}

// RecordFilter narrows List and Count queries. All fields are optional
// and conjunctive.
type RecordFilter struct {
	AppIDs        []string
	TaskCode      string
	OperateBy     string
	Status        Status
	StartTime     *time.Time
	EndTime       *time.Time
	InvalidBefore *time.Time
}

func (f *RecordFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(f.AppIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(f.AppIDs))
		conds = append(conds, "app_id IN ("+placeholders[:len(placeholders)-2]+")")
		for _, appID := range f.AppIDs {
			args = append(args, appID)
		}
	}
	if f.TaskCode != "" {
		conds = append(conds, "task_code = ?")
		args = append(args, f.TaskCode)
	}
	if f.OperateBy != "" {
		conds = append(conds, "operate_by = ?")
		args = append(args, f.OperateBy)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.StartTime != nil {
		conds = append(conds, "create_time >= ?")
		args = append(args, *f.StartTime)
	}
	if f.EndTime != nil {
		conds = append(conds, "create_time <= ?")
		args = append(args, *f.EndTime)
	}
	if f.InvalidBefore != nil {
		conds = append(conds, "invalid_time < ?")
		args = append(args, *f.InvalidBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListRecords returns a page of records matching the filter, newest first.
func (s *Store) ListRecords(filter *RecordFilter, limit, offset int) ([]*Record, error) {
	where, args := filter.whereClause()
	query := `SELECT ` + StandardRecordSelectColumns() + ` FROM export_record` + where +
		` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	return scanRecords(rows, "records")
}

// CountRecords returns the number of records matching the filter.
func (s *Store) CountRecords(filter *RecordFilter) (int, error) {
	where, args := filter.whereClause()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM export_record`+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count records")
	}
	return n, nil
}

// scanRecords is a helper that scans multiple records from query rows.
func scanRecords(rows *sql.Rows, context string) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		var r Record
		if err := ScanRecordFromRows(rows, &r); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return records, nil
}
