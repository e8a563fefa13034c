package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

// ContractPDF renders a signed contract and its payment schedule into a
// printable document.
type ContractPDF struct{}

// NewContractPDF constructs the renderer.
func NewContractPDF() *ContractPDF {
	return &ContractPDF{}
}

// Render produces the PDF bytes for a contract. The schedule may be nil
// when none has been derived yet.
func (e *ContractPDF) Render(contract *models.Contract, schedule *models.PaymentSchedule) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "TUTORING CONTRACT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", contract.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	e.section(pdf, "Terms")
	e.row(pdf, "Status", string(contract.Status))
	e.row(pdf, "Price per session", formatAmount(contract.PricePerSession))
	e.row(pdf, "Sessions", fmt.Sprintf("%d x %d min", contract.SessionCount, contract.SessionDuration))
	e.row(pdf, "Total amount", formatAmount(contract.TotalAmount))
	e.row(pdf, "Payment method", string(contract.PaymentMethod))
	pdf.Ln(4)

	e.section(pdf, "Signatures")
	e.signatureRow(pdf, "Student", contract.SignatureFor(models.SignerRoleStudent))
	e.signatureRow(pdf, "Tutor", contract.SignatureFor(models.SignerRoleTutor))
	pdf.Ln(4)

	if schedule != nil && len(schedule.Installments) > 0 {
		e.section(pdf, "Payment Schedule")
		pdf.SetFont("Arial", "B", 9)
		widths := []float64{15, 55, 40, 40, 40}
		headers := []string{"#", "Due date", "Amount", "Status", "Paid at"}
		for i, header := range headers {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, inst := range schedule.Installments {
			paidAt := ""
			if inst.PaidAt != nil {
				paidAt = inst.PaidAt.Format("2006-01-02")
			}
			cells := []string{
				fmt.Sprintf("%d", inst.Number),
				inst.DueDate.Format("2006-01-02"),
				formatAmount(inst.Amount),
				string(inst.Status),
				paidAt,
			}
			for i, cell := range cells {
				pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Paid %s of %s", formatAmount(schedule.PaidAmount), formatAmount(schedule.TotalAmount)), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.Ln(6)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *ContractPDF) section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func (e *ContractPDF) row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(50, 6, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func (e *ContractPDF) signatureRow(pdf *gofpdf.Fpdf, label string, sig *models.Signature) {
	value := "not signed"
	if sig != nil {
		value = fmt.Sprintf("signed %s (%s)", sig.SignedAt.Format("2006-01-02 15:04 MST"), sig.Evidence)
	}
	e.row(pdf, label, value)
}

func formatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}
	return sign + string(out)
}
