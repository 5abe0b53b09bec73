package trigger

import (
	"database/sql"
	"time"

	"github.com/svnlab/easy-file/errors"
	"github.com/svnlab/easy-file/export"
)

// Trigger sub-states. A record is "waiting" between a successful dispatch
// and either consumption or expiry; otherwise it sits at "init" and is
// visible to the compensation sweep.
const (
	StateInit    = "init"
	StateWaiting = "waiting"
)

// State is the dispatch bookkeeping for one register id.
type State struct {
	RegisterID   int64
	TriggerCount int
	Status       string
	StartTime    *time.Time
}

// Store persists trigger bookkeeping in the export_trigger table.
type Store struct {
	db *sql.DB
}

// NewStore creates a trigger store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the trigger state for a register id, or nil when no
// dispatch has ever been recorded.
func (s *Store) Get(registerID int64) (*State, error) {
	var st State
	var startTime sql.NullTime
	err := s.db.QueryRow(`
		SELECT register_id, trigger_count, status, start_time
		FROM export_trigger
		WHERE register_id = ?`,
		registerID,
	).Scan(&st.RegisterID, &st.TriggerCount, &st.Status, &startTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get trigger state of record %d", registerID)
	}
	if startTime.Valid {
		st.StartTime = &startTime.Time
	}
	return &st, nil
}

// EnterWaiting records a successful dispatch: the trigger count is
// incremented and the waiting window opens. Called only after the send
// succeeded, so a failed send leaves the record compensable.
func (s *Store) EnterWaiting(registerID int64) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO export_trigger (register_id, trigger_count, status, start_time, create_time, update_time)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT (register_id) DO UPDATE SET
			trigger_count = trigger_count + 1,
			status = excluded.status,
			start_time = excluded.start_time,
			update_time = excluded.update_time`,
		registerID, StateWaiting, now, now, now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to enter waiting state for record %d", registerID)
	}
	return nil
}

// Release closes the waiting window, normally on message consumption.
func (s *Store) Release(registerID int64) error {
	_, err := s.db.Exec(`
		UPDATE export_trigger
		SET status = ?, update_time = ?
		WHERE register_id = ?`,
		StateInit, time.Now(), registerID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to release trigger state of record %d", registerID)
	}
	return nil
}

// ExpireWaiting force-closes waiting windows older than timeout so the
// records become visible to the compensation sweep again.
func (s *Store) ExpireWaiting(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result, err := s.db.Exec(`
		UPDATE export_trigger
		SET status = ?, update_time = ?
		WHERE status = ? AND start_time < ?`,
		StateInit, time.Now(), StateWaiting, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire waiting triggers")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// ListCompensable returns register ids of pending records created within
// the look-back window whose trigger count is below the cap and which are
// not inside an active waiting window. Ordered by register id ascending
// for deterministic replay.
func (s *Store) ListCompensable(lookBack time.Duration, maxTriggerCount, limit int) ([]int64, error) {
	since := time.Now().Add(-lookBack)
	rows, err := s.db.Query(`
		SELECT r.id
		FROM export_record r
		LEFT JOIN export_trigger t ON t.register_id = r.id
		WHERE r.status = ?
		  AND r.create_time >= ?
		  AND COALESCE(t.trigger_count, 0) < ?
		  AND COALESCE(t.status, ?) != ?
		ORDER BY r.id ASC
		LIMIT ?`,
		export.StatusPending, since, maxTriggerCount, StateInit, StateWaiting, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list compensable records")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan compensable record id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating compensable records")
	}
	return ids, nil
}
