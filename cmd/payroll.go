package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"smartsteps/payroll"
	"smartsteps/storage"
)

var (
	payrollDBPath    string
	payrollImportID  int64
	payrollFrom      string
	payrollTo        string
	payrollRateFlags []string
	payrollLineID    int64
	payrollAmount    float64
)

var payrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Build and inspect payroll runs.",
	Long: `Aggregate the shift rows of a finalized import into a payroll run.

Each run covers one date period. Worked time is summed per employee, hours
are preferred over minutes when a row carries both, and gross pay is hours
times the hourly rate snapshotted at run time. Rate overrides replace the
directory rate for single employees in one run.`,
	Example: `
  # Build a run over the first half of the month
  smartsteps payroll run --import 3 --from 2026-08-01 --to 2026-08-15

  # Build a run with a per-employee rate override
  smartsteps payroll run --import 3 --from 2026-08-01 --to 2026-08-15 --rate 7=24.00

  # List runs
  smartsteps payroll list

  # Record a payment against a run line
  smartsteps payroll pay --line 12 --amount 350.00
`,
}

var payrollRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a payroll run from a finalized import.",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := time.ParseInLocation("2006-01-02", payrollFrom, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --from date %q: %w", payrollFrom, err)
		}
		to, err := time.ParseInLocation("2006-01-02", payrollTo, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --to date %q: %w", payrollTo, err)
		}

		overrides, err := parseRateOverrides(payrollRateFlags)
		if err != nil {
			return err
		}

		store, err := storage.OpenSQLite(payrollDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := payroll.BuildRun(store, payrollImportID, from, to, overrides)
		if err != nil {
			return err
		}

		run := result.Run
		fmt.Printf("Payroll run %d created for import %d (%s to %s). Rows included: %d, unlinked: %d, without time: %d\n",
			run.ID,
			run.ImportID,
			run.PeriodStart.Format("2006-01-02"),
			run.PeriodEnd.Format("2006-01-02"),
			result.RowsIncluded,
			result.RowsUnlinked,
			result.RowsNoTime,
		)
		for _, line := range run.Lines {
			fmt.Printf("  line %d: %s  %.2fh x %.2f = %.2f\n",
				line.ID, line.Employee, line.TotalHours, line.HourlyRate, line.GrossPay)
		}
		return nil
	},
}

var payrollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payroll runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.OpenSQLite(payrollDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No payroll runs found.")
			return nil
		}

		fmt.Printf("%-5s %-8s %-12s %-12s %6s %10s %10s\n",
			"ID", "IMPORT", "FROM", "TO", "LINES", "GROSS", "OWED")
		for _, run := range runs {
			var gross, owed float64
			for _, line := range run.Lines {
				gross += line.GrossPay
				owed += line.AmountOwed()
			}
			fmt.Printf("%-5d %-8d %-12s %-12s %6d %10.2f %10.2f\n",
				run.ID,
				run.ImportID,
				run.PeriodStart.Format("2006-01-02"),
				run.PeriodEnd.Format("2006-01-02"),
				len(run.Lines),
				gross,
				owed,
			)
		}
		return nil
	},
}

var payrollPayCmd = &cobra.Command{
	Use:   "pay",
	Short: "Record a payment against a payroll run line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if payrollAmount <= 0 {
			return fmt.Errorf("payment amount must be positive, got %.2f", payrollAmount)
		}

		store, err := storage.OpenSQLite(payrollDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.RecordLinePayment(payrollLineID, payrollAmount); err != nil {
			return err
		}
		fmt.Printf("Recorded payment of %.2f against line %d\n", payrollAmount, payrollLineID)
		return nil
	},
}

func parseRateOverrides(flags []string) (map[int64]float64, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	overrides := make(map[int64]float64, len(flags))
	for _, flag := range flags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid rate override %q, expected employeeID=rate", flag)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid employee id in rate override %q: %w", flag, err)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate in rate override %q: %w", flag, err)
		}
		overrides[id] = rate
	}
	return overrides, nil
}

func init() {
	rootCmd.AddCommand(payrollCmd)
	payrollCmd.AddCommand(payrollRunCmd)
	payrollCmd.AddCommand(payrollListCmd)
	payrollCmd.AddCommand(payrollPayCmd)

	payrollCmd.PersistentFlags().StringVar(&payrollDBPath, "db", "./smartsteps.db", "Path to local SQLite database")
	payrollRunCmd.Flags().Int64Var(&payrollImportID, "import", 0, "Finalized import id")
	payrollRunCmd.Flags().StringVar(&payrollFrom, "from", "", "Period start (YYYY-MM-DD, inclusive)")
	payrollRunCmd.Flags().StringVar(&payrollTo, "to", "", "Period end (YYYY-MM-DD, inclusive)")
	payrollRunCmd.Flags().StringArrayVar(&payrollRateFlags, "rate", nil, "Per-employee rate override as employeeID=rate (repeatable)")
	_ = payrollRunCmd.MarkFlagRequired("import")
	_ = payrollRunCmd.MarkFlagRequired("from")
	_ = payrollRunCmd.MarkFlagRequired("to")

	payrollPayCmd.Flags().Int64Var(&payrollLineID, "line", 0, "Payroll run line id")
	payrollPayCmd.Flags().Float64Var(&payrollAmount, "amount", 0, "Payment amount")
	_ = payrollPayCmd.MarkFlagRequired("line")
	_ = payrollPayCmd.MarkFlagRequired("amount")
}
