package mailqueue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// Bounded error lengths: returned message vs stored last_error.
	maxMessageLen = 500
	maxErrorLen   = 1000
)

// Renderer produces the PDF attachment for one queued item. It is a black
// box; per-item failures are contained by the batch send.
type Renderer interface {
	Render(ctx context.Context, item Item) (Attachment, error)
}

// Transport delivers one outbound email and returns a message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Service struct {
	store     Store
	renderer  Renderer
	transport Transport
	logger    *log.Logger
}

func NewService(store Store, renderer Renderer, transport Transport, logger *log.Logger) *Service {
	return &Service{store: store, renderer: renderer, transport: transport, logger: logger}
}

type BatchResult struct {
	BatchID   string
	MessageID string
	Claimed   int
	Sent      int
	Failed    int
	NoOp      bool
}

// SendBatch claims every currently queued item, renders one attachment per
// item, sends a single email carrying all successful attachments, and records
// the per-item outcome. A concurrent call observes an empty queue and exits
// as a no-op. On any error the claimed items never stay SENDING.
func (s *Service) SendBatch(ctx context.Context) (result *BatchResult, err error) {
	items, err := s.store.ClaimQueued()
	if err != nil {
		return nil, fmt.Errorf("claim queued items: %w", err)
	}
	if len(items) == 0 {
		s.logger.Println("mail queue: nothing to send")
		return &BatchResult{NoOp: true}, nil
	}

	claimedIDs := make([]int64, len(items))
	for i, item := range items {
		claimedIDs[i] = item.ID
	}

	defer func() {
		if err == nil {
			return
		}
		// Stuck SENDING rows would block every later batch. FailBatch below
		// normally clears them; this covers crashes between claim and record.
		if sweepErr := s.store.SweepSending(claimedIDs, truncate(err.Error(), maxErrorLen)); sweepErr != nil {
			s.logger.Printf("mail queue: sweep after failure: %v", sweepErr)
		}
	}()

	attachments := make([]Attachment, 0, len(items))
	sentIDs := make([]int64, 0, len(items))
	sentItems := make([]Item, 0, len(items))
	renderFailures := make(map[int64]string, len(items))

	for _, item := range items {
		attachment, renderErr := s.renderer.Render(ctx, item)
		if renderErr != nil {
			renderFailures[item.ID] = truncate(renderErr.Error(), maxErrorLen)
			s.logger.Printf("mail queue: render %s %d: %v", item.EntityType, item.EntityID, renderErr)
			continue
		}
		attachments = append(attachments, attachment)
		sentIDs = append(sentIDs, item.ID)
		sentItems = append(sentItems, item)
	}

	if len(sentIDs) == 0 {
		// Keep each item's own render error instead of one shared message.
		for _, item := range items {
			if failErr := s.store.FailBatch([]int64{item.ID}, renderFailures[item.ID]); failErr != nil {
				return nil, fmt.Errorf("record render failures: %w", failErr)
			}
		}
		return nil, fmt.Errorf("all %d attachments failed to render", len(items))
	}

	batchID := uuid.NewString()
	messageID, sendErr := s.transport.Send(ctx, Message{
		To:          recipientSet(sentItems),
		Subject:     fmt.Sprintf("Approved documents (%d attached)", len(attachments)),
		TextBody:    textSummary(sentItems, len(renderFailures)),
		HTMLBody:    htmlSummary(sentItems, len(renderFailures)),
		Attachments: attachments,
	})
	if sendErr != nil {
		if failErr := s.store.FailBatch(claimedIDs, truncate(sendErr.Error(), maxErrorLen)); failErr != nil {
			return nil, fmt.Errorf("record transport failure: %w", failErr)
		}
		return nil, fmt.Errorf("send batch email: %s", truncate(sendErr.Error(), maxMessageLen))
	}

	if err := s.store.CompleteBatch(batchID, sentIDs, renderFailures); err != nil {
		return nil, fmt.Errorf("record batch outcome: %w", err)
	}

	s.logger.Printf("mail queue: batch %s sent %d of %d items", batchID, len(sentIDs), len(items))
	return &BatchResult{
		BatchID:   batchID,
		MessageID: messageID,
		Claimed:   len(items),
		Sent:      len(sentIDs),
		Failed:    len(renderFailures),
	}, nil
}

// Resend moves one FAILED item back to QUEUED. Failed items never re-enter
// the queue automatically.
func (s *Service) Resend(id int64) error {
	if err := s.store.Requeue(id); err != nil {
		return fmt.Errorf("requeue item %d: %w", id, err)
	}
	return nil
}

func recipientSet(items []Item) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, recipient := range item.Recipients {
			address := strings.ToLower(strings.TrimSpace(recipient))
			if address == "" {
				continue
			}
			if _, ok := seen[address]; ok {
				continue
			}
			seen[address] = struct{}{}
			out = append(out, address)
		}
	}
	sort.Strings(out)
	return out
}

func textSummary(items []Item, failed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attached: %d approved document(s).\n\n", len(items))
	for _, item := range items {
		fmt.Fprintf(&b, "- %s #%d\n", item.EntityType, item.EntityID)
	}
	if failed > 0 {
		fmt.Fprintf(&b, "\n%d item(s) could not be rendered and were excluded.\n", failed)
	}
	return b.String()
}

func htmlSummary(items []Item, failed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Attached: %d approved document(s).</p><ul>", len(items))
	for _, item := range items {
		fmt.Fprintf(&b, "<li>%s #%d</li>", item.EntityType, item.EntityID)
	}
	b.WriteString("</ul>")
	if failed > 0 {
		fmt.Fprintf(&b, "<p>%d item(s) could not be rendered and were excluded.</p>", failed)
	}
	return b.String()
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
