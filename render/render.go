// Package render produces the PDF attachments the mail queue sends:
// timesheet summaries for imports and invoices for payroll runs.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"

	"smartsteps/mailqueue"
	"smartsteps/storage"
)

const pdfContentType = "application/pdf"

type PDFRenderer struct {
	store *storage.SQLiteStore
}

func NewPDFRenderer(store *storage.SQLiteStore) *PDFRenderer {
	return &PDFRenderer{store: store}
}

// Render resolves the queued item's backing entity and renders it to PDF
// bytes. The mail queue treats this as a black box and contains per-item
// failures.
func (r *PDFRenderer) Render(ctx context.Context, item mailqueue.Item) (mailqueue.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return mailqueue.Attachment{}, err
	}

	switch item.EntityType {
	case mailqueue.EntityTimesheet:
		return r.renderTimesheet(item.EntityID)
	case mailqueue.EntityInvoice:
		return r.renderInvoice(item.EntityID)
	default:
		return mailqueue.Attachment{}, fmt.Errorf("unsupported entity type %q", item.EntityType)
	}
}

func (r *PDFRenderer) renderTimesheet(importID int64) (mailqueue.Attachment, error) {
	imp, err := r.store.GetImport(importID)
	if err != nil {
		return mailqueue.Attachment{}, fmt.Errorf("load import %d: %w", importID, err)
	}
	rows, err := r.store.ListShiftRows(importID)
	if err != nil {
		return mailqueue.Attachment{}, fmt.Errorf("load shift rows for import %d: %w", importID, err)
	}

	m := newDocument(fmt.Sprintf("Timesheet - import #%d", imp.ID), imp.Filename)

	headers := []string{"Date", "Employee", "In", "Out", "Hours"}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.WorkDate.Format("2006-01-02"),
			row.Employee,
			formatClock(row.TimeIn),
			formatClock(row.TimeOut),
			formatHours(row.Hours),
		})
	}

	m.TableList(headers, table, props.TableList{
		HeaderProp: props.TableListContent{
			Size:      9,
			GridSizes: []uint{2, 4, 2, 2, 2},
		},
		ContentProp: props.TableListContent{
			Size:      9,
			GridSizes: []uint{2, 4, 2, 2, 2},
		},
		Align:                consts.Left,
		AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
		HeaderContentSpace:   1,
		Line:                 false,
	})

	return finishDocument(m, fmt.Sprintf("timesheet-%d.pdf", imp.ID))
}

func (r *PDFRenderer) renderInvoice(runID int64) (mailqueue.Attachment, error) {
	run, err := r.store.GetRun(runID)
	if err != nil {
		return mailqueue.Attachment{}, fmt.Errorf("load payroll run %d: %w", runID, err)
	}

	subtitle := fmt.Sprintf("%s - %s",
		run.PeriodStart.Format("2006-01-02"), run.PeriodEnd.Format("2006-01-02"))
	m := newDocument(fmt.Sprintf("Invoice - payroll run #%d", run.ID), subtitle)

	headers := []string{"Employee", "Hours", "Rate", "Gross", "Paid", "Owed"}
	table := make([][]string, 0, len(run.Lines))
	var totalGross, totalOwed float64
	for _, line := range run.Lines {
		totalGross += line.GrossPay
		totalOwed += line.AmountOwed()
		table = append(table, []string{
			line.Employee,
			fmt.Sprintf("%.2f", line.TotalHours),
			fmt.Sprintf("%.2f", line.HourlyRate),
			fmt.Sprintf("%.2f", line.GrossPay),
			fmt.Sprintf("%.2f", line.AmountPaid),
			fmt.Sprintf("%.2f", line.AmountOwed()),
		})
	}

	m.TableList(headers, table, props.TableList{
		HeaderProp: props.TableListContent{
			Size:      9,
			GridSizes: []uint{4, 2, 2, 2, 1, 1},
		},
		ContentProp: props.TableListContent{
			Size:      9,
			GridSizes: []uint{4, 2, 2, 2, 1, 1},
		},
		Align:                consts.Left,
		AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
		HeaderContentSpace:   1,
		Line:                 false,
	})

	m.Row(8, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("Total gross: %.2f   Total owed: %.2f", totalGross, totalOwed), props.Text{
				Top:   2,
				Style: consts.Bold,
				Size:  10,
			})
		})
	})

	return finishDocument(m, fmt.Sprintf("invoice-%d.pdf", run.ID))
}

func newDocument(title, subtitle string) pdf.Maroto {
	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(20, 10, 20)

	m.RegisterHeader(func() {
		m.Row(10, func() {
			m.Col(12, func() {
				m.Text(title, props.Text{
					Top:   3,
					Style: consts.Bold,
					Align: consts.Center,
					Size:  14,
				})
			})
		})
		m.Row(8, func() {
			m.Col(12, func() {
				m.Text(subtitle, props.Text{
					Top:   2,
					Align: consts.Center,
					Size:  10,
				})
			})
		})
	})

	return m
}

func finishDocument(m pdf.Maroto, filename string) (mailqueue.Attachment, error) {
	buffer, err := m.Output()
	if err != nil {
		return mailqueue.Attachment{}, fmt.Errorf("render pdf: %w", err)
	}
	return mailqueue.Attachment{
		Filename:    filename,
		Content:     buffer.Bytes(),
		ContentType: pdfContentType,
	}, nil
}

func formatClock(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Format("15:04")
}

func formatHours(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *value)
}
