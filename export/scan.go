package export

import (
	"database/sql"
)

// RecordScanArgs holds the nullable variables needed for scanning a record
// from a database row.
type RecordScanArgs struct {
	LastExecuteTime sql.NullTime
	InvalidTime     sql.NullTime
}

// GetRecordScanArgs returns a RecordScanArgs struct ready for scanning.
func GetRecordScanArgs() *RecordScanArgs {
	return &RecordScanArgs{}
}

// GetRecordScanTargets returns scan targets for the record and scan args,
// in the order expected by StandardRecordSelectColumns.
func GetRecordScanTargets(r *Record, args *RecordScanArgs) []interface{} {
	return []interface{}{
		&r.ID,
		&r.TaskID,
		&r.AppID,
		&r.TaskCode,
		&r.Status,
		&r.FileURL,
		&r.FileName,
		&r.FileSystem,
		&r.OperateBy,
		&r.OperateName,
		&r.Remark,
		&r.NotifyEnabled,
		&r.NotifyChannel,
		&r.MaxServerRetry,
		&r.CurrentRetry,
		&r.DownloadCount,
		&r.ExecuteProgress,
		&r.ExecuteParam,
		&r.ErrorMsg,
		&args.LastExecuteTime,
		&args.InvalidTime,
		&r.Version,
		&r.CreateTime,
		&r.UpdateTime,
		&r.CreateBy,
		&r.UpdateBy,
		&r.Locale,
	}
}

// ProcessRecordScanArgs moves the nullable columns onto the record.
func ProcessRecordScanArgs(r *Record, args *RecordScanArgs) {
	if args.LastExecuteTime.Valid {
		r.LastExecuteTime = &args.LastExecuteTime.Time
	}
	if args.InvalidTime.Valid {
		r.InvalidTime = &args.InvalidTime.Time
	}
}

// ScanRecordFromRow scans a single record from a sql.Row.
func ScanRecordFromRow(row *sql.Row, r *Record) error {
	args := GetRecordScanArgs()
	targets := GetRecordScanTargets(r, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	ProcessRecordScanArgs(r, args)
	return nil
}

// ScanRecordFromRows scans a single record from sql.Rows (for use in loops).
func ScanRecordFromRows(rows *sql.Rows, r *Record) error {
	args := GetRecordScanArgs()
	targets := GetRecordScanTargets(r, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	ProcessRecordScanArgs(r, args)
	return nil
}

// StandardRecordSelectColumns returns the standard column list for record
// SELECT queries.
func StandardRecordSelectColumns() string {
	return `id, task_id, app_id, task_code, status,
		file_url, file_name, file_system,
		operate_by, operate_name, remark,
		notify_enabled, notify_channel,
		max_server_retry, current_retry, download_count,
		execute_progress, execute_param, error_msg,
		last_execute_time, invalid_time, version,
		create_time, update_time, create_by, update_by, locale`
}
