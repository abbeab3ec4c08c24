package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
)

const (
	sheetName = "Expenses"

	headerRow    = 1
	dataRowStart = 2
)

var columns = []string{
	"Expense ID", "Submitter", "Category", "Description",
	"Amount", "Currency", "Expense Date", "Status", "Decided At",
}

// Exporter writes a company's expenses to an .xlsx workbook. It reads
// the expense store only; nothing here touches workflow state.
type Exporter struct {
	expenses port.ExpenseReader
	logger   *zap.Logger
}

// NewExporter creates a new report exporter
func NewExporter(expenses port.ExpenseReader, logger *zap.Logger) *Exporter {
	return &Exporter{
		expenses: expenses,
		logger:   logger,
	}
}

// ExportCompany writes all company expenses (optionally filtered by
// status) to w as an Excel workbook and returns the row count.
func (e *Exporter) ExportCompany(ctx context.Context, w io.Writer, companyID, status string) (int, error) {
	expenses, err := e.expenses.ListByCompany(companyID, status, 10000, 0)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), sheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}

	for i, title := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return 0, err
		}
		if err := file.SetCellValue(sheetName, cell, title); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	for i, exp := range expenses {
		if err := e.fillRow(file, dataRowStart+i, exp); err != nil {
			return 0, err
		}
	}

	if err := file.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info("Expense report exported",
		zap.String("company_id", companyID),
		zap.String("status", status),
		zap.Int("rows", len(expenses)))

	return len(expenses), nil
}

func (e *Exporter) fillRow(file *excelize.File, row int, exp *entity.Expense) error {
	decidedAt := ""
	if exp.DecidedAt != nil {
		decidedAt = exp.DecidedAt.Format(time.RFC3339)
	}

	values := []interface{}{
		exp.ID,
		exp.SubmitterID,
		exp.Category,
		exp.Description,
		float64(exp.AmountCents) / 100,
		exp.Currency,
		exp.ExpenseDate.Format("2006-01-02"),
		exp.Status,
		decidedAt,
	}

	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	return nil
}
