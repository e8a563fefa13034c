package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

// ScheduleCSV renders a payment schedule's installments as CSV.
type ScheduleCSV struct{}

// NewScheduleCSV builds the exporter.
func NewScheduleCSV() *ScheduleCSV {
	return &ScheduleCSV{}
}

// Render produces CSV bytes with one row per installment.
func (e *ScheduleCSV) Render(schedule *models.PaymentSchedule) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"number", "session", "amount", "due_date", "status", "paid_at", "transaction_ref"}); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, inst := range schedule.Installments {
		paidAt := ""
		if inst.PaidAt != nil {
			paidAt = inst.PaidAt.Format("2006-01-02")
		}
		ref := ""
		if inst.TransactionRef != nil {
			ref = *inst.TransactionRef
		}
		record := []string{
			fmt.Sprintf("%d", inst.Number),
			fmt.Sprintf("%d", inst.SessionNumber),
			fmt.Sprintf("%d", inst.Amount),
			inst.DueDate.Format("2006-01-02"),
			string(inst.Status),
			paidAt,
			ref,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
