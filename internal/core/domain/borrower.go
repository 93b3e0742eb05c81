package domain

// Borrower is the eligibility view of a member as reported by the identity provider.
type Borrower struct {
	ID            string
	Name          string
	Active        bool
	HasUnpaidFine bool
}
