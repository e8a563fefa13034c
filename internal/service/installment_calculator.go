package service

import (
	"time"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

// fullPaymentDue is the grace window before a single payment falls due.
const fullPaymentDue = 3 * 24 * time.Hour

// InstallmentSpec is one derived payment line before persistence.
type InstallmentSpec struct {
	Number        int
	SessionNumber int
	Amount        int64
	DueDate       time.Time
}

// InstallmentTerms are the calculator inputs beyond the total amount.
type InstallmentTerms struct {
	PaymentMethod    models.PaymentMethod
	InstallmentCount int
	DownPayment      int64
	FirstPaymentPct  int
	AnchorDate       time.Time
}

// CalculateInstallments derives the ordered payment lines for a contract.
// The amounts always sum exactly to totalAmount: every line but the last is
// ceiling-divided and the last absorbs the remainder.
func CalculateInstallments(totalAmount int64, terms InstallmentTerms) ([]InstallmentSpec, error) {
	if totalAmount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "total amount must be positive")
	}
	if terms.FirstPaymentPct < 0 || terms.FirstPaymentPct > 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "first payment percentage must be between 0 and 100")
	}
	anchor := terms.AnchorDate
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}

	if terms.PaymentMethod == models.PaymentMethodFull || terms.InstallmentCount == 1 {
		return []InstallmentSpec{{Number: 1, SessionNumber: 1, Amount: totalAmount, DueDate: anchor.Add(fullPaymentDue)}}, nil
	}
	if terms.InstallmentCount < 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "installment count must be at least 1")
	}

	if terms.DownPayment > 0 {
		return withDownPayment(totalAmount, terms, anchor)
	}
	if terms.FirstPaymentPct > 0 {
		return withFirstPercentage(totalAmount, terms, anchor)
	}
	return evenSplit(totalAmount, terms, anchor)
}

// evenSplit divides the total across InstallmentCount monthly lines.
func evenSplit(totalAmount int64, terms InstallmentTerms, anchor time.Time) ([]InstallmentSpec, error) {
	count := terms.InstallmentCount
	per := ceilDiv(totalAmount, int64(count))
	last := totalAmount - per*int64(count-1)
	if last <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "installment count too large for the total amount")
	}

	specs := make([]InstallmentSpec, 0, count)
	for i := 0; i < count; i++ {
		amount := per
		if i == count-1 {
			amount = last
		}
		due := anchor.Add(fullPaymentDue)
		if i > 0 {
			due = anchor.AddDate(0, i, 0)
		}
		specs = append(specs, InstallmentSpec{
			Number:        i + 1,
			SessionNumber: i + 1,
			Amount:        amount,
			DueDate:       due,
		})
	}
	return specs, nil
}

// withDownPayment produces the down payment due on the anchor date followed
// by InstallmentCount monthly installments covering the rest.
func withDownPayment(totalAmount int64, terms InstallmentTerms, anchor time.Time) ([]InstallmentSpec, error) {
	if terms.DownPayment >= totalAmount {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "down payment must be below the total amount")
	}
	remaining := totalAmount - terms.DownPayment
	count := terms.InstallmentCount
	per := ceilDiv(remaining, int64(count))
	last := remaining - per*int64(count-1)
	if last <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "installment count too large for the amount after the down payment")
	}

	specs := make([]InstallmentSpec, 0, count+1)
	specs = append(specs, InstallmentSpec{Number: 1, SessionNumber: 1, Amount: terms.DownPayment, DueDate: anchor})
	for i := 1; i <= count; i++ {
		amount := per
		if i == count {
			amount = last
		}
		specs = append(specs, InstallmentSpec{
			Number:        i + 1,
			SessionNumber: i + 1,
			Amount:        amount,
			DueDate:       anchor.AddDate(0, i, 0),
		})
	}
	return specs, nil
}

// withFirstPercentage produces a first installment carved out as a
// percentage of the total, then an even monthly split of the rest.
func withFirstPercentage(totalAmount int64, terms InstallmentTerms, anchor time.Time) ([]InstallmentSpec, error) {
	count := terms.InstallmentCount
	first := (totalAmount*int64(terms.FirstPaymentPct) + 50) / 100
	if first <= 0 || first >= totalAmount {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "first payment percentage yields an unusable split")
	}
	remaining := totalAmount - first
	rest := count - 1
	per := ceilDiv(remaining, int64(rest))
	last := remaining - per*int64(rest-1)
	if last <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTerms, "installment count too large for the amount after the first payment")
	}

	specs := make([]InstallmentSpec, 0, count)
	specs = append(specs, InstallmentSpec{Number: 1, SessionNumber: 1, Amount: first, DueDate: anchor.Add(fullPaymentDue)})
	for i := 1; i <= rest; i++ {
		amount := per
		if i == rest {
			amount = last
		}
		specs = append(specs, InstallmentSpec{
			Number:        i + 1,
			SessionNumber: i + 1,
			Amount:        amount,
			DueDate:       anchor.AddDate(0, i, 0),
		})
	}
	return specs, nil
}

func ceilDiv(amount, parts int64) int64 {
	return (amount + parts - 1) / parts
}
