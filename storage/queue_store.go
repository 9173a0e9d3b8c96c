package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartsteps/mailqueue"
)

var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrItemNotFailed     = errors.New("queue item is not FAILED")
)

const queueItemColumns = `
id, entity_type, entity_id, recipients, status, attempts, last_error,
batch_id, queued_at, sent_at, deleted_at`

// Enqueue adds one QUEUED notification item.
func (s *SQLiteStore) Enqueue(item *mailqueue.Item) error {
	if item.Status == "" {
		item.Status = mailqueue.StatusQueued
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now()
	}

	res, err := s.db.Exec(`
INSERT INTO email_queue (entity_type, entity_id, recipients, status, queued_at)
VALUES (?, ?, ?, ?, ?);`,
		string(item.EntityType),
		item.EntityID,
		strings.Join(item.Recipients, ","),
		string(item.Status),
		item.QueuedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read queue item id: %w", err)
	}
	item.ID = id
	return nil
}

// ClaimQueued is the mutual-exclusion boundary for batch sends: it selects
// every QUEUED, non-deleted item in queue order and marks the whole set
// SENDING inside one transaction. A concurrent claim that loses the race
// finds nothing to lock.
func (s *SQLiteStore) ClaimQueued() ([]mailqueue.Item, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	rows, err := tx.Query(`
SELECT ` + queueItemColumns + `
FROM email_queue
WHERE status = 'QUEUED' AND deleted_at IS NULL
ORDER BY queued_at, id;`)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("select queued items: %w", err)
	}

	items, err := collectQueueItems(rows)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if len(items) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	query, args := inClause(
		`UPDATE email_queue SET status = 'SENDING' WHERE status = 'QUEUED' AND id IN (%s);`, ids,
	)
	res, err := tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("mark items sending: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil || affected != int64(len(items)) {
		_ = tx.Rollback()
		return nil, fmt.Errorf("claimed %d of %d queued items", affected, len(items))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	for i := range items {
		items[i].Status = mailqueue.StatusSending
	}
	return items, nil
}

// CompleteBatch records a successful send: sent items become SENT under the
// shared batch id and their backing entities are stamped emailed; items whose
// attachment failed to render become FAILED with their specific error. One
// transaction covers all of it.
func (s *SQLiteStore) CompleteBatch(batchID string, sentIDs []int64, renderFailures map[int64]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	for _, id := range sentIDs {
		if _, err := tx.Exec(`
UPDATE email_queue
SET status = 'SENT', batch_id = ?, sent_at = ?, last_error = ''
WHERE id = ?;`, batchID, now, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark item %d sent: %w", id, err)
		}

		if err := stampEntityEmailed(tx, id, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	for id, lastError := range renderFailures {
		if _, err := tx.Exec(`
UPDATE email_queue
SET status = 'FAILED', last_error = ?, attempts = attempts + 1
WHERE id = ?;`, lastError, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark item %d failed: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch outcome: %w", err)
	}
	return nil
}

// FailBatch marks every given item FAILED and increments its attempts.
func (s *SQLiteStore) FailBatch(ids []int64, lastError string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`
UPDATE email_queue
SET status = 'FAILED', last_error = ?, attempts = attempts + 1
WHERE id IN (%s);`, ids, lastError)
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("mark batch failed: %w", err)
	}
	return nil
}

// SweepSending returns any of the given items still stuck in SENDING to
// FAILED so a crashed send cannot hold the queue.
func (s *SQLiteStore) SweepSending(ids []int64, lastError string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`
UPDATE email_queue
SET status = 'FAILED', last_error = ?
WHERE status = 'SENDING' AND id IN (%s);`, ids, lastError)
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("sweep sending items: %w", err)
	}
	return nil
}

// Requeue moves one FAILED item back to QUEUED for an explicit resend.
func (s *SQLiteStore) Requeue(id int64) error {
	res, err := s.db.Exec(`
UPDATE email_queue
SET status = 'QUEUED', batch_id = '', sent_at = NULL
WHERE id = ? AND status = 'FAILED' AND deleted_at IS NULL;`, id)
	if err != nil {
		return fmt.Errorf("requeue item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read requeued row count: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetQueueItem(id); err != nil {
			return err
		}
		return ErrItemNotFailed
	}
	return nil
}

// SoftDeleteQueueItem hides an item from future claims without erasing its
// history.
func (s *SQLiteStore) SoftDeleteQueueItem(id int64) error {
	res, err := s.db.Exec(
		`UPDATE email_queue SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL;`,
		time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("delete queue item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read deleted row count: %w", err)
	}
	if affected == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

func (s *SQLiteStore) GetQueueItem(id int64) (*mailqueue.Item, error) {
	row := s.db.QueryRow(`
SELECT `+queueItemColumns+`
FROM email_queue
WHERE id = ?;`, id)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueItemNotFound
		}
		return nil, fmt.Errorf("query queue item %d: %w", id, err)
	}
	return item, nil
}

func (s *SQLiteStore) ListQueueItems(includeDeleted bool) ([]mailqueue.Item, error) {
	query := `
SELECT ` + queueItemColumns + `
FROM email_queue`
	if !includeDeleted {
		query += `
WHERE deleted_at IS NULL`
	}
	query += `
ORDER BY queued_at, id;`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query queue items: %w", err)
	}
	return collectQueueItems(rows)
}

func stampEntityEmailed(tx *sql.Tx, itemID int64, now string) error {
	var (
		entityType string
		entityID   int64
	)
	err := tx.QueryRow(
		`SELECT entity_type, entity_id FROM email_queue WHERE id = ?;`, itemID,
	).Scan(&entityType, &entityID)
	if err != nil {
		return fmt.Errorf("resolve entity for item %d: %w", itemID, err)
	}

	switch mailqueue.EntityType(entityType) {
	case mailqueue.EntityTimesheet:
		_, err = tx.Exec(`UPDATE imports SET emailed_at = ? WHERE id = ?;`, now, entityID)
	case mailqueue.EntityInvoice:
		_, err = tx.Exec(`UPDATE payroll_runs SET emailed_at = ? WHERE id = ?;`, now, entityID)
	default:
		return fmt.Errorf("unknown entity type %q on item %d", entityType, itemID)
	}
	if err != nil {
		return fmt.Errorf("stamp %s %d emailed: %w", entityType, entityID, err)
	}
	return nil
}

func collectQueueItems(rows *sql.Rows) ([]mailqueue.Item, error) {
	defer rows.Close()

	items := make([]mailqueue.Item, 0, 16)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

func scanQueueItem(scanner rowScanner) (*mailqueue.Item, error) {
	var (
		item       mailqueue.Item
		entityType string
		recipients string
		status     string
		queuedAt   string
		sentAt     sql.NullString
		deletedAt  sql.NullString
	)
	if err := scanner.Scan(
		&item.ID, &entityType, &item.EntityID, &recipients, &status,
		&item.Attempts, &item.LastError, &item.BatchID, &queuedAt, &sentAt, &deletedAt,
	); err != nil {
		return nil, err
	}

	item.EntityType = mailqueue.EntityType(entityType)
	item.Status = mailqueue.Status(status)
	item.Recipients = splitRecipients(recipients)

	var err error
	if item.QueuedAt, err = time.Parse(time.RFC3339, queuedAt); err != nil {
		return nil, fmt.Errorf("parse queued_at %q: %w", queuedAt, err)
	}
	if item.SentAt, err = parseNullableTime(sentAt); err != nil {
		return nil, err
	}
	if item.DeletedAt, err = parseNullableTime(deletedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func splitRecipients(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// inClause expands an IN (%s) query with one placeholder per id. Extra
// leading arguments bind before the ids.
func inClause(format string, ids []int64, leading ...any) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(leading)+len(ids))
	args = append(args, leading...)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	return fmt.Sprintf(format, strings.Join(placeholders, ", ")), args
}
