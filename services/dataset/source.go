package datasetsvc

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/ripoti/core/report"
)

const (
	defaultMonths = 6
	maxMonths     = 24
	pointLayout   = "Jan 2006"
)

// Metric describes a metric served by the source and the range of its values.
type Metric struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

var catalog = map[string]Metric{
	"attendance.rate":  {Key: "attendance.rate", Label: "Attendance rate", Min: 70, Max: 99},
	"enrollment.total": {Key: "enrollment.total", Label: "Enrollment", Min: 120, Max: 2400},
	"fees.collected":   {Key: "fees.collected", Label: "Fees collected", Min: 5000, Max: 90000},
	"fees.outstanding": {Key: "fees.outstanding", Label: "Fees outstanding", Min: 0, Max: 25000},
	"grades.average":   {Key: "grades.average", Label: "Average grade", Min: 9, Max: 18},
	"staff.total":      {Key: "staff.total", Label: "Staff", Min: 8, Max: 160},
}

// Source is a deterministic report.DataSource: the same query always yields the same values,
// one point per month of the queried period.
type Source struct {
	now func() time.Time
}

var _ report.DataSource = (*Source)(nil)

func NewSource() *Source {
	return &Source{now: time.Now}
}

// Metrics lists the known metrics, sorted by key.
func Metrics() []Metric {
	metrics := make([]Metric, 0, len(catalog))
	for _, m := range catalog {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Key < metrics[j].Key })
	return metrics
}

func lookup(key string) Metric {
	if m, ok := catalog[key]; ok {
		return m
	}
	// unknown metrics are served as plain counts
	label := strings.ReplaceAll(key, ".", " ")
	label = strings.ReplaceAll(label, "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return Metric{Key: key, Label: label, Min: 0, Max: 1000}
}

func (s *Source) Fetch(ctx context.Context, q report.DataQuery) ([]report.Series, error) {
	months := s.period(q.From, q.To)
	series := make([]report.Series, 0, len(q.MetricKeys))
	for _, key := range q.MetricKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := lookup(key)
		points := make([]report.Point, 0, len(months))
		for _, month := range months {
			points = append(points, report.Point{
				Label: month.Format(pointLayout),
				Value: value(m, q, month),
			})
		}
		series = append(series, report.Series{Key: key, Label: m.Label, Points: points})
	}
	return series, nil
}

// period returns the first day of every month between from and to, keeping the last maxMonths.
func (s *Source) period(from, to time.Time) []time.Time {
	if to.IsZero() {
		to = s.now()
	}
	end := monthStart(to.UTC())
	start := end.AddDate(0, -(defaultMonths - 1), 0)
	if !from.IsZero() {
		start = monthStart(from.UTC())
	}
	if start.After(end) {
		start = end
	}
	if earliest := end.AddDate(0, -(maxMonths - 1), 0); start.Before(earliest) {
		start = earliest
	}

	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func value(m Metric, q report.DataQuery, month time.Time) float64 {
	h := fnv.New64a()
	for _, part := range []string{string(q.ScopeKind), q.ScopeID, m.Key, month.Format("2006-01")} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	ratio := float64(h.Sum64()%10000) / 10000
	return math.Round((m.Min+(m.Max-m.Min)*ratio)*100) / 100
}
