package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/veriscope/veriscope-api/internal/models"
)

// PeriodLatest asks for the most recent observation of a concept.
const PeriodLatest = "latest"

var (
	quarterLabelRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	yearLabelRe    = regexp.MustCompile(`^(\d{4})$`)
)

// Period is a parsed period request: either "latest" or a calendar
// quarter/year with its canonical date range.
type Period struct {
	Latest    bool
	Label     string
	Frequency models.Frequency
	Start     time.Time
	End       time.Time
}

// ParsePeriod parses a period label: "latest", "YYYY-Qn", or "YYYY".
// Calendar quarters are used as the canonical range; fiscal-year
// offsets are absorbed by nearest-range matching at lookup time.
func ParsePeriod(label string) (Period, error) {
	if label == "" || label == PeriodLatest {
		return Period{Latest: true, Label: PeriodLatest}, nil
	}
	if m := quarterLabelRe.FindStringSubmatch(label); m != nil {
		year, _ := strconv.Atoi(m[1])
		quarter, _ := strconv.Atoi(m[2])
		start := time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{
			Label:     label,
			Frequency: models.FreqQuarterly,
			Start:     start,
			End:       start.AddDate(0, 3, -1),
		}, nil
	}
	if m := yearLabelRe.FindStringSubmatch(label); m != nil {
		year, _ := strconv.Atoi(m[1])
		return Period{
			Label:     label,
			Frequency: models.FreqAnnual,
			Start:     time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:       time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		}, nil
	}
	return Period{}, fmt.Errorf("unparseable period label %q (want \"latest\", \"YYYY-Qn\", or \"YYYY\")", label)
}

// LabelFor derives the display label for an observation from its end
// date and cadence: "2025-Q2" for quarters, "2024" for fiscal years.
func LabelFor(end time.Time, freq models.Frequency) string {
	if freq == models.FreqAnnual {
		return strconv.Itoa(end.Year())
	}
	quarter := (int(end.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", end.Year(), quarter)
}
