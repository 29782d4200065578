package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// ScopeQuery binds a report.DataQuery from the query string:
// `?scope=organization&scope_id=42&from=2024-01-01&to=2024-06-30`.
type ScopeQuery struct {
	Scope   string `query:"scope"`
	ScopeID string `query:"scope_id"`
	From    string `query:"from"`
	To      string `query:"to"`
}

func (sq ScopeQuery) DataQuery() (report.DataQuery, error) {
	q := report.DataQuery{
		ScopeKind: report.ScopeKind(core.CleanString(sq.Scope, true /* lower */)),
		ScopeID:   core.CleanString(sq.ScopeID),
	}
	var err error
	if q.From, err = parseDate("from", sq.From); err != nil {
		return q, err
	}
	if q.To, err = parseDate("to", sq.To); err != nil {
		return q, err
	}
	return q, nil
}

func parseDate(field, val string) (time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(
			errors.Wrapf(err, "parsing %s", field),
			core.FieldError{Field: field, Error: field + " must be a date formatted as YYYY-MM-DD"},
		)
	}
	return t, nil
}
