package dashboard

import "github.com/angelmondragon/libraryhub-backend/pkg/enums"

// StatsDTO is the headline count strip.
type StatsDTO struct {
	TotalBooks      int64 `json:"total_books"`
	BorrowedBooks   int64 `json:"borrowed_books"`
	OverdueBooks    int64 `json:"overdue_books"`
	ActiveUsers     int64 `json:"active_users"`
	PendingRequests int64 `json:"pending_requests"`
}

// SummaryDTO breaks circulation down by copies and loan status.
type SummaryDTO struct {
	TotalCopies     int64                      `json:"total_copies"`
	AvailableCopies int64                      `json:"available_copies"`
	LoansByStatus   map[enums.LoanStatus]int64 `json:"loans_by_status"`
	ReturnedLoans   int64                      `json:"returned_loans"`
	Holds           int64                      `json:"holds"`
}
