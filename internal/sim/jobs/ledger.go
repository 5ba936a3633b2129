package jobs

import (
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/model"
)

// Debit subtracts cost from the empire's resources. Every resource is
// checked before any is subtracted; a shortage names all deficient
// resources and leaves the ledger untouched.
func Debit(emp *model.Empire, cost map[string]float64) error {
	var missing []string
	for r, amount := range cost {
		if emp.Resources[r] < amount {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return apperrors.Shortage(missing)
	}
	if len(cost) > 0 && emp.Resources == nil {
		emp.Resources = map[string]float64{}
	}
	for r, amount := range cost {
		emp.Resources[r] -= amount
	}
	return nil
}

// Credit adds cost back to the empire's resources.
func Credit(emp *model.Empire, cost map[string]float64) {
	if len(cost) == 0 {
		return
	}
	if emp.Resources == nil {
		emp.Resources = map[string]float64{}
	}
	for r, amount := range cost {
		emp.Resources[r] += amount
	}
}
