package storage

import (
	"errors"
	"testing"
	"time"

	"smartsteps/mailqueue"
)

func enqueueItem(t *testing.T, store *SQLiteStore, entity mailqueue.EntityType, entityID int64, queuedAt time.Time) *mailqueue.Item {
	t.Helper()
	item := &mailqueue.Item{
		EntityType: entity,
		EntityID:   entityID,
		Recipients: []string{"hr@example.com"},
		QueuedAt:   queuedAt,
	}
	if err := store.Enqueue(item); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return item
}

func TestQueueStore_ClaimMarksSendingAndPartitions(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	first := enqueueItem(t, store, mailqueue.EntityTimesheet, 1, base)
	second := enqueueItem(t, store, mailqueue.EntityTimesheet, 2, base.Add(time.Minute))

	claimed, err := store.ClaimQueued()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d items, want 2", len(claimed))
	}
	if claimed[0].ID != first.ID || claimed[1].ID != second.ID {
		t.Errorf("claim order = %d,%d, want queue order %d,%d",
			claimed[0].ID, claimed[1].ID, first.ID, second.ID)
	}
	for _, item := range claimed {
		if item.Status != mailqueue.StatusSending {
			t.Errorf("item %d status = %s, want SENDING", item.ID, item.Status)
		}
	}

	// The losing concurrent claim finds nothing to lock.
	again, err := store.ClaimQueued()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim got %d items, want 0", len(again))
	}
}

func TestQueueStore_ConcurrentClaimsPartitionCleanly(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := int64(1); i <= 5; i++ {
		enqueueItem(t, store, mailqueue.EntityTimesheet, i, base.Add(time.Duration(i)*time.Minute))
	}

	type claimResult struct {
		items []mailqueue.Item
		err   error
	}
	results := make(chan claimResult, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			items, err := store.ClaimQueued()
			results <- claimResult{items: items, err: err}
		}()
	}
	close(start)

	seen := make(map[int64]bool)
	total := 0
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			t.Fatalf("claim: %v", res.err)
		}
		for _, item := range res.items {
			if seen[item.ID] {
				t.Errorf("item %d claimed twice", item.ID)
			}
			seen[item.ID] = true
		}
		total += len(res.items)
	}

	// The winner takes the whole queue; the loser observes an empty set.
	if total != 5 {
		t.Errorf("claimed %d items across both claims, want 5", total)
	}
}

func TestQueueStore_ClaimSkipsDeletedItems(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	item := enqueueItem(t, store, mailqueue.EntityTimesheet, 1, time.Now())
	if err := store.SoftDeleteQueueItem(item.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	claimed, err := store.ClaimQueued()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed deleted item")
	}

	// Hidden from the default listing, visible with includeDeleted.
	visible, err := store.ListQueueItems(false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("deleted item still listed")
	}
	all, err := store.ListQueueItems(true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || all[0].DeletedAt == nil {
		t.Errorf("expected one soft-deleted item, got %+v", all)
	}
}

func TestQueueStore_CompleteBatch(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	imp := seedImport(t, store)
	sent := enqueueItem(t, store, mailqueue.EntityTimesheet, imp.ID, time.Now())
	failed := enqueueItem(t, store, mailqueue.EntityTimesheet, imp.ID, time.Now())
	if _, err := store.ClaimQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}

	err := store.CompleteBatch("batch-1", []int64{sent.ID}, map[int64]string{failed.ID: "render exploded"})
	if err != nil {
		t.Fatalf("complete batch: %v", err)
	}

	sentItem, err := store.GetQueueItem(sent.ID)
	if err != nil {
		t.Fatalf("get sent item: %v", err)
	}
	if sentItem.Status != mailqueue.StatusSent {
		t.Errorf("sent item status = %s, want SENT", sentItem.Status)
	}
	if sentItem.BatchID != "batch-1" || sentItem.SentAt == nil {
		t.Errorf("sent item batch=%q sent_at=%v", sentItem.BatchID, sentItem.SentAt)
	}

	failedItem, err := store.GetQueueItem(failed.ID)
	if err != nil {
		t.Fatalf("get failed item: %v", err)
	}
	if failedItem.Status != mailqueue.StatusFailed {
		t.Errorf("failed item status = %s, want FAILED", failedItem.Status)
	}
	if failedItem.LastError != "render exploded" || failedItem.Attempts != 1 {
		t.Errorf("failed item error=%q attempts=%d", failedItem.LastError, failedItem.Attempts)
	}

	// The backing timesheet is stamped in the same transaction.
	loaded, err := store.GetImport(imp.ID)
	if err != nil {
		t.Fatalf("get import: %v", err)
	}
	if loaded.EmailedAt == nil {
		t.Errorf("import emailed_at not stamped")
	}
}

func TestQueueStore_FailBatchIncrementsAttempts(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	item := enqueueItem(t, store, mailqueue.EntityInvoice, 1, time.Now())
	if _, err := store.ClaimQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.FailBatch([]int64{item.ID}, "smtp timeout"); err != nil {
		t.Fatalf("fail batch: %v", err)
	}
	if err := store.FailBatch(nil, "noop"); err != nil {
		t.Fatalf("empty fail batch: %v", err)
	}

	loaded, err := store.GetQueueItem(item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if loaded.Status != mailqueue.StatusFailed || loaded.LastError != "smtp timeout" || loaded.Attempts != 1 {
		t.Errorf("item = %+v, want FAILED/smtp timeout/1 attempt", loaded)
	}
}

func TestQueueStore_SweepSendingOnlyTouchesStuckItems(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	stuck := enqueueItem(t, store, mailqueue.EntityInvoice, 1, time.Now())
	queued := enqueueItem(t, store, mailqueue.EntityInvoice, 2, time.Now())
	if _, err := store.ClaimQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Move the second item back to QUEUED so only the first is stuck.
	if err := store.FailBatch([]int64{queued.ID}, "x"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.Requeue(queued.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	if err := store.SweepSending([]int64{stuck.ID, queued.ID}, "crash cleanup"); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	sweptItem, err := store.GetQueueItem(stuck.ID)
	if err != nil {
		t.Fatalf("get stuck item: %v", err)
	}
	if sweptItem.Status != mailqueue.StatusFailed || sweptItem.LastError != "crash cleanup" {
		t.Errorf("stuck item = %+v, want FAILED with sweep error", sweptItem)
	}

	untouched, err := store.GetQueueItem(queued.ID)
	if err != nil {
		t.Fatalf("get queued item: %v", err)
	}
	if untouched.Status != mailqueue.StatusQueued {
		t.Errorf("queued item status = %s, want QUEUED", untouched.Status)
	}
}

func TestQueueStore_Requeue(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	item := enqueueItem(t, store, mailqueue.EntityInvoice, 1, time.Now())

	if err := store.Requeue(item.ID); !errors.Is(err, ErrItemNotFailed) {
		t.Errorf("requeue of QUEUED item: %v, want ErrItemNotFailed", err)
	}
	if err := store.Requeue(99); !errors.Is(err, ErrQueueItemNotFound) {
		t.Errorf("requeue of missing item: %v, want ErrQueueItemNotFound", err)
	}

	if _, err := store.ClaimQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.FailBatch([]int64{item.ID}, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.Requeue(item.ID); err != nil {
		t.Fatalf("requeue failed item: %v", err)
	}

	loaded, err := store.GetQueueItem(item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if loaded.Status != mailqueue.StatusQueued || loaded.BatchID != "" || loaded.SentAt != nil {
		t.Errorf("requeued item = %+v, want clean QUEUED state", loaded)
	}
}
