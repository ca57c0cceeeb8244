package repo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Skryldev/appointments/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dialect
// ─────────────────────────────────────────────────────────────────────────────

// Dialect captures the SQL differences between the supported databases.
// Queries in this package are written with $n placeholders; Rebind
// rewrites them for databases that use "?".
type Dialect struct {
	name         string
	questionMark bool
	returning    bool
}

var (
	Postgres = Dialect{name: "postgres", returning: true}
	SQLite   = Dialect{name: "sqlite", returning: true}
	MySQL    = Dialect{name: "mysql", questionMark: true}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("repo: no dialect for driver %q", driverName)
}

func (d Dialect) String() string { return d.name }

// Placeholder returns the n-th (1-based) bind marker.
func (d Dialect) Placeholder(n int) string {
	if d.questionMark {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool { return d.returning }

var dollarParam = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $n markers into the dialect's style. Queries must
// reference each parameter once, in ascending order.
func (d Dialect) Rebind(query string) string {
	if !d.questionMark {
		return query
	}
	return dollarParam.ReplaceAllString(query, "?")
}

// ─────────────────────────────────────────────────────────────────────────────
// whereClause
// ─────────────────────────────────────────────────────────────────────────────

// Filterable columns. Only these identifiers ever reach query text from a
// filter; values are always bound.
const (
	colAppointmentDate = "appointment_date"
	colStatus          = "status"
)

// whereClause accumulates AND-ed equality predicates with bound values.
type whereClause struct {
	dialect Dialect
	conds   []string
	args    []any
}

func newWhereClause(d Dialect) *whereClause {
	return &whereClause{dialect: d}
}

// eq adds "column = <next placeholder>".
func (w *whereClause) eq(column string, value any) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, column+" = "+w.dialect.Placeholder(len(w.args)))
}

// SQL returns " WHERE a AND b", or "" when there are no predicates.
func (w *whereClause) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereClause) Args() []any { return w.args }

// buildFilter translates an AppointmentFilter into predicates. Absent
// fields add nothing, so the empty filter selects every row.
func buildFilter(d Dialect, f models.AppointmentFilter) *whereClause {
	w := newWhereClause(d)
	if f.Date != nil {
		w.eq(colAppointmentDate, *f.Date)
	}
	if f.Status != nil {
		w.eq(colStatus, string(*f.Status))
	}
	return w
}
