// Package mailqueue drives pending notification items through the
// QUEUED, SENDING, SENT/FAILED lifecycle. Mutual exclusion between
// concurrent batch sends is the store's claim transaction, never an
// in-process lock.
package mailqueue

import (
	"time"
)

type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

type EntityType string

const (
	EntityTimesheet EntityType = "timesheet"
	EntityInvoice   EntityType = "invoice"
)

// Item is one pending notification for an approved entity.
type Item struct {
	ID         int64
	EntityType EntityType
	EntityID   int64
	Recipients []string
	Status     Status
	Attempts   int
	LastError  string
	BatchID    string
	QueuedAt   time.Time
	SentAt     *time.Time
	DeletedAt  *time.Time
}

type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

type Message struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Store is the persistence contract the state machine needs. Claiming must be
// atomic: a competing claim observes either the whole queued set or nothing.
type Store interface {
	// ClaimQueued selects all QUEUED, non-deleted items in queue order and
	// marks them SENDING within one transaction. An empty result means
	// another send holds the queue or there is nothing to do.
	ClaimQueued() ([]Item, error)
	// CompleteBatch marks sent items SENT under a shared batch id, stamps
	// their backing entities as emailed, and marks render-failed items
	// FAILED with their per-item error, all in one transaction.
	CompleteBatch(batchID string, sentIDs []int64, renderFailures map[int64]string) error
	// FailBatch marks every item FAILED with the given error and increments
	// its attempts counter.
	FailBatch(ids []int64, lastError string) error
	// SweepSending returns any of the given items still SENDING to FAILED.
	SweepSending(ids []int64, lastError string) error
	// Requeue moves one FAILED item back to QUEUED.
	Requeue(id int64) error
}
