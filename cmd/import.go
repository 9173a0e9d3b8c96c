package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"smartsteps/config"
	"smartsteps/importer"
	"smartsteps/storage"
	"smartsteps/timelog"
)

var (
	importInput       string
	importFormat      string
	importDBPath      string
	importForce       bool
	importColEmployee string
	importColRef      string
	importColDate     string
	importColIn       string
	importColOut      string
	importColEvent    string
	importColMinutes  string
	importColHours    string
)

// duplicateUploadWindow is how long a filename blocks a re-upload.
const duplicateUploadWindow = 24 * time.Hour

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV/Excel time-log export into a local SQLite database",
	Long: `Read one source file, parse and deduplicate the raw punch rows, reconcile
them into worked shifts, and persist the result as a DRAFT import.

Column flags map spreadsheet headers to their meaning. Header matching ignores
case, spaces, dashes and underscores. The reconciliation strategy (standard,
fingerprint-scanner, event-based) is detected from the mapping and the data.

Uploading a file with the same name twice within 24 hours is rejected and the
prior import id is reported; pass --force to import anyway.`,
	Example: `
  # Fingerprint-scanner export: every punch lives in one time column
  smartsteps import -i scans.xlsx --col-employee Name --col-date Date --col-in Time --col-out Time

  # Event-based export with an in/out marker column
  smartsteps import -i events.csv --col-employee Employee --col-date Day --col-in Clock --col-out Clock --col-event Direction

  # Standard export with explicit in and out columns
  smartsteps import -i shifts.csv --col-employee Employee --col-date Date --col-in "Time In" --col-out "Time Out"

  # Totals-only export
  smartsteps import -i totals.xlsx --col-employee Name --col-date Date --col-hours "Hours Worked"
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}

		mapping := timelog.ColumnMapping{
			Employee:    importColEmployee,
			EmployeeRef: importColRef,
			Date:        importColDate,
			TimeIn:      importColIn,
			TimeOut:     importColOut,
			EventType:   importColEvent,
			Minutes:     importColMinutes,
			Hours:       importColHours,
		}

		result, err := importer.Run(importInput, mapping, importer.RunOptions{
			Format:        importFormat,
			StrictMapping: cfg.Import.StrictMapping,
		})
		if err != nil {
			return err
		}

		store, err := storage.OpenSQLite(importDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if !importForce {
			prior, err := store.FindRecentImport(result.Filename, time.Now().Add(-duplicateUploadWindow))
			if err != nil {
				return err
			}
			if prior != nil {
				return fmt.Errorf("duplicate upload: %q was already imported as import %d within the last 24 hours (use --force to import anyway)",
					result.Filename, prior.ID)
			}
		}

		imp := &timelog.Import{
			Filename:      result.Filename,
			ContentHash:   result.ContentHash,
			Status:        timelog.ImportStatusDraft,
			Strategy:      result.Strategy.String(),
			Mapping:       mapping,
			RowCount:      result.RowsRead,
			ImportedCount: result.Imported,
			SkippedCount:  result.Skipped,
		}
		if err := store.CreateImport(imp, result.Rows); err != nil {
			return err
		}

		for _, warning := range result.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}
		fmt.Printf("Import %d created (%s, strategy %s). Rows read: %d, Imported: %d, Skipped: %d, Incomplete: %d\n",
			imp.ID,
			imp.Filename,
			imp.Strategy,
			result.RowsRead,
			result.Imported,
			result.Skipped,
			result.Incomplete,
		)

		if cfg.Import.AutoLinkEmployees {
			linked, err := store.LinkImportRows(imp.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Linked %d rows to known employees\n", linked)
		}

		return nil
	},
	Args: cobra.NoArgs,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "Input file path")
	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "Input format: csv|excel (optional, inferred from extension when omitted)")
	importCmd.Flags().StringVar(&importDBPath, "db", "./smartsteps.db", "Path to local SQLite database")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Import even when the same filename was uploaded within 24 hours")
	importCmd.Flags().StringVar(&importColEmployee, "col-employee", "", "Header of the employee name column")
	importCmd.Flags().StringVar(&importColRef, "col-ref", "", "Header of the employee reference/id column")
	importCmd.Flags().StringVar(&importColDate, "col-date", "", "Header of the work date column")
	importCmd.Flags().StringVar(&importColIn, "col-in", "", "Header of the time-in column")
	importCmd.Flags().StringVar(&importColOut, "col-out", "", "Header of the time-out column")
	importCmd.Flags().StringVar(&importColEvent, "col-event", "", "Header of the in/out event marker column")
	importCmd.Flags().StringVar(&importColMinutes, "col-minutes", "", "Header of the worked-minutes column")
	importCmd.Flags().StringVar(&importColHours, "col-hours", "", "Header of the worked-hours column")

	_ = importCmd.MarkFlagRequired("input")
	_ = importCmd.MarkFlagRequired("col-date")
}
