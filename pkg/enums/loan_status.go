package enums

import "fmt"

// LoanStatus tracks where a loan sits in its lifecycle. Returned loans keep
// the approved status and carry returned=true.
type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "pending"
	LoanStatusApproved LoanStatus = "approved"
	LoanStatusRejected LoanStatus = "rejected"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusApproved,
	LoanStatusRejected,
}

// String implements fmt.Stringer.
func (s LoanStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LoanStatus.
func (s LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	switch s {
	case LoanStatusPending:
		return next == LoanStatusApproved || next == LoanStatusRejected
	case LoanStatusApproved, LoanStatusRejected:
		return false
	default:
		return false
	}
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
