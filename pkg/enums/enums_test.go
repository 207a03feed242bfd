package enums

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"student": RoleStudent,
		" ADMIN ": RoleAdmin,
		"Student": RoleStudent,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseRole("librarian"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestLoanStatusTransitions(t *testing.T) {
	allowed := map[[2]LoanStatus]bool{
		{LoanStatusPending, LoanStatusApproved}:  true,
		{LoanStatusPending, LoanStatusRejected}:  true,
		{LoanStatusApproved, LoanStatusRejected}: false,
		{LoanStatusRejected, LoanStatusApproved}: false,
		{LoanStatusApproved, LoanStatusPending}:  false,
	}
	for pair, want := range allowed {
		if got := pair[0].CanTransitionTo(pair[1]); got != want {
			t.Fatalf("%s -> %s: expected %v got %v", pair[0], pair[1], want, got)
		}
	}
	if LoanStatus("lost").IsValid() {
		t.Fatalf("unknown status must be invalid")
	}
}
