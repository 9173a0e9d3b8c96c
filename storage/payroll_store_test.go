package storage

import (
	"errors"
	"testing"

	"smartsteps/payroll"
)

func seedRun(t *testing.T, store *SQLiteStore) *payroll.Run {
	t.Helper()
	imp := seedImport(t, store)
	run := &payroll.Run{
		ImportID:    imp.ID,
		PeriodStart: testDay,
		PeriodEnd:   testDay.AddDate(0, 0, 14),
		Lines: []payroll.Line{
			{EmployeeID: 1, Employee: "Dana Reyes", TotalMinutes: 510, TotalHours: 8.5, HourlyRate: 21.5, GrossPay: 182.75},
			{EmployeeID: 2, Employee: "Luis Ortega", TotalMinutes: 480, TotalHours: 8, HourlyRate: 18, GrossPay: 144},
		},
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func TestPayrollStore_CreateAndGetRun(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	run := seedRun(t, store)
	if run.ID == 0 || run.Lines[0].ID == 0 {
		t.Fatalf("ids not assigned: run=%d line=%d", run.ID, run.Lines[0].ID)
	}

	loaded, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !loaded.PeriodStart.Equal(run.PeriodStart) || !loaded.PeriodEnd.Equal(run.PeriodEnd) {
		t.Errorf("period = %s..%s, want %s..%s",
			loaded.PeriodStart, loaded.PeriodEnd, run.PeriodStart, run.PeriodEnd)
	}
	if len(loaded.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(loaded.Lines))
	}
	if loaded.Lines[0].GrossPay != 182.75 {
		t.Errorf("gross = %v, want 182.75", loaded.Lines[0].GrossPay)
	}

	if _, err := store.GetRun(99); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("get missing run: %v, want ErrRunNotFound", err)
	}
}

func TestPayrollStore_ListRuns(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	seedRun(t, store)

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || len(runs[0].Lines) != 2 {
		t.Fatalf("runs = %+v, want one run with two lines", runs)
	}
}

func TestPayrollStore_RecordLinePayment(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	run := seedRun(t, store)
	lineID := run.Lines[0].ID

	if err := store.RecordLinePayment(lineID, 100); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if err := store.RecordLinePayment(lineID, 50.25); err != nil {
		t.Fatalf("record second payment: %v", err)
	}

	loaded, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	line := loaded.Lines[0]
	if line.AmountPaid != 150.25 {
		t.Errorf("paid = %v, want 150.25", line.AmountPaid)
	}
	if owed := line.AmountOwed(); owed != 32.5 {
		t.Errorf("owed = %v, want 32.5", owed)
	}

	if err := store.RecordLinePayment(999, 10); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("payment on missing line: %v, want ErrLineNotFound", err)
	}
}
