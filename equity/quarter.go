/*
quarter.go - Fiscal quarter literal parsing and boundary dates

PURPOSE:
  The quarter literal "YYYY-Qn" (n in 1..4) is the wire contract between
  the surrounding application and the distribution processor. It is
  validated before any computation; a malformed or out-of-range value is
  rejected with ErrInvalidPeriod and no partial work is performed.

BOUNDARIES:
  Period() computes the first and last calendar day of the three-month
  span purely from the parsed year and quarter. Dates are UTC; the end
  date is the last day at the day granularity, matching how the revenue
  aggregation filters entries.
*/
package equity

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// =============================================================================
// QUARTER
// =============================================================================

var quarterPattern = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)

// Quarter is a parsed, format-valid quarter literal.
type Quarter struct {
	Year int
	Q    int
}

// ParseQuarter validates the literal format "YYYY-Qn". Year bounds are
// checked separately via Params.ValidateQuarter so the bounds stay
// injected configuration, not parser constants.
func ParseQuarter(value string) (Quarter, error) {
	m := quarterPattern.FindStringSubmatch(value)
	if m == nil {
		return Quarter{}, &InvalidPeriodError{Value: value, Reason: "want YYYY-Qn with n in 1..4"}
	}
	year, _ := strconv.Atoi(m[1])
	q, _ := strconv.Atoi(m[2])
	return Quarter{Year: year, Q: q}, nil
}

// ValidateQuarter parses a literal and enforces the configured year bounds.
func (p Params) ValidateQuarter(value string) (Quarter, error) {
	q, err := ParseQuarter(value)
	if err != nil {
		return Quarter{}, err
	}
	if q.Year < p.MinYear || q.Year > p.MaxYear {
		return Quarter{}, &InvalidPeriodError{
			Value:  value,
			Reason: fmt.Sprintf("year %d outside [%d, %d]", q.Year, p.MinYear, p.MaxYear),
		}
	}
	return q, nil
}

// Period returns the first and last calendar day of the quarter, UTC.
func (q Quarter) Period() (start, end time.Time) {
	startMonth := time.Month((q.Q-1)*3 + 1)
	start = time.Date(q.Year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 3, 0).AddDate(0, 0, -1)
	return start, end
}

// String renders the wire literal.
func (q Quarter) String() string {
	return fmt.Sprintf("%04d-Q%d", q.Year, q.Q)
}

// Next returns the following quarter.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Previous returns the preceding quarter.
func (q Quarter) Previous() Quarter {
	if q.Q == 1 {
		return Quarter{Year: q.Year - 1, Q: 4}
	}
	return Quarter{Year: q.Year, Q: q.Q - 1}
}

// QuarterOf returns the quarter containing t.
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}
