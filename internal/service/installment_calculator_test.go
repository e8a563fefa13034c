package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

func sumAmounts(specs []InstallmentSpec) int64 {
	var total int64
	for _, spec := range specs {
		total += spec.Amount
	}
	return total
}

func TestCalculateInstallmentsFullPayment(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	specs, err := CalculateInstallments(1_000_000, InstallmentTerms{
		PaymentMethod: models.PaymentMethodFull,
		AnchorDate:    anchor,
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, int64(1_000_000), specs[0].Amount)
	assert.Equal(t, 1, specs[0].Number)
	assert.Equal(t, anchor.Add(72*time.Hour), specs[0].DueDate)
}

func TestCalculateInstallmentsSingleCountBehavesAsFullPayment(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	specs, err := CalculateInstallments(500_000, InstallmentTerms{
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 1,
		AnchorDate:       anchor,
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, int64(500_000), specs[0].Amount)
	assert.Equal(t, anchor.Add(72*time.Hour), specs[0].DueDate)
}

func TestCalculateInstallmentsEvenSplit(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	specs, err := CalculateInstallments(1_000_000, InstallmentTerms{
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 3,
		AnchorDate:       anchor,
	})
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, int64(333_334), specs[0].Amount)
	assert.Equal(t, int64(333_334), specs[1].Amount)
	assert.Equal(t, int64(333_332), specs[2].Amount)
	assert.Equal(t, int64(1_000_000), sumAmounts(specs))
	assert.Equal(t, anchor.Add(72*time.Hour), specs[0].DueDate)
	assert.Equal(t, anchor.AddDate(0, 1, 0), specs[1].DueDate)
	assert.Equal(t, anchor.AddDate(0, 2, 0), specs[2].DueDate)
}

func TestCalculateInstallmentsDownPayment(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	specs, err := CalculateInstallments(1_000_000, InstallmentTerms{
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 3,
		DownPayment:      200_000,
		AnchorDate:       anchor,
	})
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, int64(200_000), specs[0].Amount)
	assert.Equal(t, anchor, specs[0].DueDate)
	assert.Equal(t, int64(266_667), specs[1].Amount)
	assert.Equal(t, int64(266_667), specs[2].Amount)
	assert.Equal(t, int64(266_666), specs[3].Amount)
	assert.Equal(t, int64(1_000_000), sumAmounts(specs))

	for i, spec := range specs {
		assert.Equal(t, i+1, spec.Number)
	}
	assert.Equal(t, anchor.AddDate(0, 1, 0), specs[1].DueDate)
	assert.Equal(t, anchor.AddDate(0, 3, 0), specs[3].DueDate)
}

func TestCalculateInstallmentsFirstPercentage(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	specs, err := CalculateInstallments(1_000_001, InstallmentTerms{
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 4,
		FirstPaymentPct:  30,
		AnchorDate:       anchor,
	})
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, int64(300_000), specs[0].Amount)
	assert.Equal(t, anchor.Add(72*time.Hour), specs[0].DueDate)
	assert.Equal(t, int64(1_000_001), sumAmounts(specs))
	assert.Equal(t, anchor.AddDate(0, 1, 0), specs[1].DueDate)
}

func TestCalculateInstallmentsExactSumProperty(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	totals := []int64{1, 7, 99, 1_000, 333_333, 1_000_000, 987_654_321}
	counts := []int{2, 3, 5, 7, 12}

	for _, total := range totals {
		for _, count := range counts {
			specs, err := CalculateInstallments(total, InstallmentTerms{
				PaymentMethod:    models.PaymentMethodInstallments,
				InstallmentCount: count,
				FirstPaymentPct:  25,
				AnchorDate:       anchor,
			})
			if err != nil {
				// Tiny totals can make the percentage carve-out unusable.
				continue
			}
			assert.Equal(t, total, sumAmounts(specs), "total=%d count=%d", total, count)
			for i, spec := range specs {
				assert.Equal(t, i+1, spec.Number)
				assert.Positive(t, spec.Amount, "total=%d count=%d line=%d", total, count, i+1)
				if i > 0 {
					assert.True(t, spec.DueDate.After(specs[i-1].DueDate))
				}
			}
		}
	}
}

func TestCalculateInstallmentsInvalidTerms(t *testing.T) {
	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		total int64
		terms InstallmentTerms
	}{
		{"zero total", 0, InstallmentTerms{PaymentMethod: models.PaymentMethodFull}},
		{"negative total", -5, InstallmentTerms{PaymentMethod: models.PaymentMethodFull}},
		{"zero count", 100, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, AnchorDate: anchor}},
		{"percentage out of range", 100, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, InstallmentCount: 2, FirstPaymentPct: 120, AnchorDate: anchor}},
		{"down payment too large", 100, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, InstallmentCount: 2, DownPayment: 150, AnchorDate: anchor}},
		{"count above amount", 3, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, InstallmentCount: 5, AnchorDate: anchor}},
		{"count above amount after down payment", 10, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, InstallmentCount: 8, DownPayment: 5, AnchorDate: anchor}},
		{"count above amount after first payment", 100, InstallmentTerms{PaymentMethod: models.PaymentMethodInstallments, InstallmentCount: 5, FirstPaymentPct: 97, AnchorDate: anchor}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateInstallments(tc.total, tc.terms)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrInvalidTerms.Code, appErr.Code)
		})
	}
}
