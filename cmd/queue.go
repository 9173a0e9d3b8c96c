package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"smartsteps/config"
	"smartsteps/mailer"
	"smartsteps/mailqueue"
	"smartsteps/render"
	"smartsteps/storage"
)

var (
	queueDBPath     string
	queueEntity     string
	queueEntityID   int64
	queueRecipients []string
	queueItemID     int64
	queueListAll    bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the outbound email queue.",
	Long: `Queue timesheet and invoice emails and send them in batches.

Queued items move QUEUED to SENDING to SENT or FAILED. One send drains every
queued item into a single email carrying all rendered PDF attachments. Failed
items stay put until they are explicitly resent.`,
	Example: `
  # Queue the timesheet for import 3
  smartsteps queue add --entity timesheet --id 3 --to hr@example.com

  # Queue the invoice for payroll run 1 with two recipients
  smartsteps queue add --entity invoice --id 1 --to payroll@example.com --to boss@example.com

  # Send everything that is queued
  smartsteps queue send

  # Put a failed item back in the queue
  smartsteps queue resend --id 4

  # Remove an item from the queue
  smartsteps queue delete --id 4
`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue an email for a timesheet or invoice.",
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := mailqueue.EntityType(queueEntity)
		switch entity {
		case mailqueue.EntityTimesheet, mailqueue.EntityInvoice:
		default:
			return fmt.Errorf("invalid entity type %q, expected timesheet or invoice", queueEntity)
		}

		store, err := storage.OpenSQLite(queueDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		item := &mailqueue.Item{
			EntityType: entity,
			EntityID:   queueEntityID,
			Recipients: queueRecipients,
		}
		if err := store.Enqueue(item); err != nil {
			return err
		}
		fmt.Printf("Queued item %d (%s %d)\n", item.ID, item.EntityType, item.EntityID)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(queueDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.ListQueueItems(queueListAll)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		fmt.Printf("%-5s %-10s %-6s %-8s %-8s %-20s %s\n",
			"ID", "ENTITY", "REF", "STATUS", "TRIES", "QUEUED", "LAST ERROR")
		for _, item := range items {
			fmt.Printf("%-5d %-10s %-6d %-8s %-8d %-20s %s\n",
				item.ID,
				item.EntityType,
				item.EntityID,
				item.Status,
				item.Attempts,
				item.QueuedAt.Format("2006-01-02 15:04"),
				item.LastError,
			)
		}
		return nil
	},
}

var queueSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send all queued emails as one batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}

		store, err := storage.OpenSQLite(queueDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		logger := log.New(os.Stderr, "queue: ", log.LstdFlags)
		service := mailqueue.NewService(store, render.NewPDFRenderer(store), transport, logger)

		result, err := service.SendBatch(cmd.Context())
		if err != nil {
			return err
		}
		if result.NoOp {
			fmt.Println("Nothing queued.")
			return nil
		}
		fmt.Printf("Batch %s sent. Claimed: %d, Sent: %d, Failed: %d\n",
			result.BatchID, result.Claimed, result.Sent, result.Failed)
		return nil
	},
}

var queueResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Put a failed item back in the queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(queueDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		logger := log.New(os.Stderr, "queue: ", log.LstdFlags)
		service := mailqueue.NewService(store, nil, nil, logger)
		if err := service.Resend(queueItemID); err != nil {
			return err
		}
		fmt.Printf("Item %d requeued\n", queueItemID)
		return nil
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove an item from the queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(queueDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SoftDeleteQueueItem(queueItemID); err != nil {
			return err
		}
		fmt.Printf("Item %d deleted\n", queueItemID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueSendCmd)
	queueCmd.AddCommand(queueResendCmd)
	queueCmd.AddCommand(queueDeleteCmd)

	queueCmd.PersistentFlags().StringVar(&queueDBPath, "db", "./smartsteps.db", "Path to local SQLite database")
	queueAddCmd.Flags().StringVar(&queueEntity, "entity", "", "Entity type: timesheet|invoice")
	queueAddCmd.Flags().Int64Var(&queueEntityID, "id", 0, "Entity id (import id or payroll run id)")
	queueAddCmd.Flags().StringArrayVar(&queueRecipients, "to", nil, "Recipient email address (repeatable)")
	_ = queueAddCmd.MarkFlagRequired("entity")
	_ = queueAddCmd.MarkFlagRequired("id")
	_ = queueAddCmd.MarkFlagRequired("to")

	queueListCmd.Flags().BoolVar(&queueListAll, "all", false, "Include deleted items")
	queueResendCmd.Flags().Int64Var(&queueItemID, "id", 0, "Queue item id")
	queueDeleteCmd.Flags().Int64Var(&queueItemID, "id", 0, "Queue item id")
	_ = queueResendCmd.MarkFlagRequired("id")
	_ = queueDeleteCmd.MarkFlagRequired("id")
}
