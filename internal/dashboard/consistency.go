package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"revenue/internal/core"
	"revenue/internal/log"
)

// Sources compared by the consistency check.
const (
	SourceRevenue = "revenue"
	SourceMonthly = "monthly"
	SourceSummary = "summary"
)

// Tolerance is the largest total difference, in currency units, that still
// counts as agreement.
var Tolerance = decimal.New(1, -2)

// Totals is one source's view of the year.
type Totals struct {
	Total          core.Money `json:"total"`
	Aeronautika    core.Money `json:"aeronautika"`
	NonAeronautika core.Money `json:"nonAeronautika"`
}

// Discrepancy is a pair of sources whose totals differ by more than
// Tolerance. Difference is Left minus Right.
type Discrepancy struct {
	Left       string          `json:"left"`
	Right      string          `json:"right"`
	LeftTotal  core.Money      `json:"leftTotal"`
	RightTotal core.Money      `json:"rightTotal"`
	Difference decimal.Decimal `json:"difference"`
}

type ConsistencyReport struct {
	Year          int           `json:"year"`
	CheckedAt     time.Time     `json:"checkedAt"`
	Revenue       Totals        `json:"revenue"`
	Monthly       Totals        `json:"monthly"`
	Summary       Totals        `json:"summary"`
	Records       int           `json:"records"`
	Truncated     bool          `json:"truncated"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Consistent reports whether no discrepancy was found.
func (r ConsistencyReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// CheckConsistency compares the working copy, the monthly series and the
// yearly summary. The working copy is compared against the summary only
// when the summary total is positive, and against neither aggregate when it
// holds fewer rows than the server reported. Discrepancies are logged as
// warnings.
func (s *Store) CheckConsistency(ctx context.Context) ConsistencyReport {
	s.mu.RLock()
	reported := s.pagination.Total
	report := ConsistencyReport{
		Year:      s.currentYear,
		CheckedAt: s.now(),
		Records:   len(s.revenues),
		Truncated: reported > int64(len(s.revenues)),
	}
	ct := splitCategories(s.revenues)
	report.Revenue = Totals{Total: sumRevenues(s.revenues), Aeronautika: ct.Aeronautika, NonAeronautika: ct.NonAeronautika}
	for _, m := range s.monthly {
		report.Monthly.Total = report.Monthly.Total.Add(m.Total)
		report.Monthly.Aeronautika = report.Monthly.Aeronautika.Add(m.Aeronautika)
		report.Monthly.NonAeronautika = report.Monthly.NonAeronautika.Add(m.NonAeronautika)
	}
	if s.summary != nil {
		report.Summary = Totals{
			Total:          s.summary.Summary.TotalRevenue,
			Aeronautika:    s.summary.Summary.AeronautikaRevenue,
			NonAeronautika: s.summary.Summary.NonAeronautikaRevenue,
		}
	}
	s.mu.RUnlock()

	s.logger.InfoContext(ctx, "Verifying data consistency",
		log.FieldYear, report.Year,
		"revenue_total", report.Revenue.Total.String(),
		"monthly_total", report.Monthly.Total.String(),
		"summary_total", report.Summary.Total.String(),
		log.FieldCount, report.Records)

	if report.Truncated {
		s.logger.WarnContext(ctx, "Working copy is incomplete, skipping ledger comparisons",
			log.FieldYear, report.Year,
			log.FieldCount, report.Records,
			"reported_total", reported)
	} else {
		report.compare(SourceRevenue, report.Revenue.Total, SourceMonthly, report.Monthly.Total)
		if report.Summary.Total.Cents > 0 {
			report.compare(SourceRevenue, report.Revenue.Total, SourceSummary, report.Summary.Total)
		}
	}
	report.compare(SourceMonthly, report.Monthly.Total, SourceSummary, report.Summary.Total)

	for _, d := range report.Discrepancies {
		s.logger.WarnContext(ctx, "Discrepancy between "+d.Left+" total and "+d.Right+" total",
			d.Left, d.LeftTotal.String(),
			d.Right, d.RightTotal.String(),
			"difference", d.Difference.StringFixed(2))
	}
	return report
}

func (r *ConsistencyReport) compare(left string, lt core.Money, right string, rt core.Money) {
	diff := lt.Decimal().Sub(rt.Decimal())
	if diff.Abs().LessThanOrEqual(Tolerance) {
		return
	}
	r.Discrepancies = append(r.Discrepancies, Discrepancy{
		Left:       left,
		Right:      right,
		LeftTotal:  lt,
		RightTotal: rt,
		Difference: diff,
	})
}
