package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverdueEntry is a read-only projection of an overdue loan. EstimatedFine is
// what the loan would owe if returned on AsOf; it is never written back.
type OverdueEntry struct {
	Loan          Loan
	AsOf          time.Time
	DaysOverdue   int
	EstimatedFine decimal.Decimal
}

// OverdueReport is the ad hoc overdue listing with its estimated total.
type OverdueReport struct {
	AsOf           time.Time
	Entries        []OverdueEntry
	TotalEstimated decimal.Decimal
}

// NewOverdueReport projects the given loans as of now, skipping any that are not overdue.
func NewOverdueReport(loans []Loan, now time.Time, ratePerDay decimal.Decimal) OverdueReport {
	report := OverdueReport{AsOf: DateOf(now), TotalEstimated: decimal.Zero}
	for _, l := range loans {
		if !l.IsOverdue(now) {
			continue
		}
		fine := l.EstimatedFine(now, ratePerDay)
		report.Entries = append(report.Entries, OverdueEntry{
			Loan:          l,
			AsOf:          report.AsOf,
			DaysOverdue:   l.DaysOverdue(now),
			EstimatedFine: fine,
		})
		report.TotalEstimated = report.TotalEstimated.Add(fine)
	}
	return report
}
