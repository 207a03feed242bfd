package loans

import (
	"fmt"

	dbtypes "github.com/angelmondragon/libraryhub-backend/pkg/db/types"
	"github.com/shopspring/decimal"
)

// DefaultFinePerDay is the charge for each calendar day past the due date.
var DefaultFinePerDay = decimal.NewFromInt(50)

// FineCalculator prices late returns. Fines are computed, never stored. Build
// it with NewFineCalculator.
type FineCalculator struct {
	perDay decimal.Decimal
}

// NewFineCalculator parses the configured per-day rate; blank uses the default.
func NewFineCalculator(perDay string) (FineCalculator, error) {
	if perDay == "" {
		return FineCalculator{perDay: DefaultFinePerDay}, nil
	}
	rate, err := decimal.NewFromString(perDay)
	if err != nil {
		return FineCalculator{}, fmt.Errorf("parse fine rate %q: %w", perDay, err)
	}
	if rate.IsNegative() {
		return FineCalculator{}, fmt.Errorf("fine rate must not be negative")
	}
	return FineCalculator{perDay: rate}, nil
}

// DaysLate is max(0, returned - due) in calendar days.
func DaysLate(due, returned dbtypes.Date) int {
	days := returned.DaysSince(due)
	if days < 0 {
		return 0
	}
	return days
}

// Fine returns DaysLate(due, returned) x rate.
func (c FineCalculator) Fine(due, returned dbtypes.Date) decimal.Decimal {
	return c.perDay.Mul(decimal.NewFromInt(int64(DaysLate(due, returned))))
}
