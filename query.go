package spannerorm

import (
	"fmt"
	"strings"

	"cloud.google.com/go/spanner"
)

// selectQuery assembles a SELECT statement for a model from bound conditions
type selectQuery struct {
	md     *Metadata
	reg    *Registry
	wheres []Condition
	order  Condition
	lim    Condition
	incs   []*includes
}

// newSelectQuery binds conds against the model and sorts them into query
// segments. At most one OrderBy and one Limit are accepted.
func newSelectQuery(md *Metadata, reg *Registry, conds []Condition) (*selectQuery, error) {
	q := &selectQuery{md: md, reg: reg}
	for _, c := range conds {
		if c == nil {
			continue
		}
		if err := c.bind(md, reg); err != nil {
			return nil, err
		}
		switch c.segment() {
		case segmentWhere:
			q.wheres = append(q.wheres, c)
		case segmentOrder:
			if q.order != nil {
				return nil, validationError("query has more than one OrderBy")
			}
			q.order = c
		case segmentLimit:
			if q.lim != nil {
				return nil, validationError("query has more than one Limit")
			}
			q.lim = c
		case segmentInclude:
			q.incs = append(q.incs, c.(*includes))
		}
	}
	return q, nil
}

// statement renders the full SELECT with its parameters
func (q *selectQuery) statement() spanner.Statement {
	p := newParams()
	t := q.md.table
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range q.md.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t)
		sb.WriteByte('.')
		sb.WriteString(col)
	}
	for _, inc := range q.incs {
		sb.WriteString(", ")
		inc.appendSQL(&sb, t, p)
	}
	fmt.Fprintf(&sb, " FROM %s", t)
	q.appendFilters(&sb, p)
	return spanner.Statement{SQL: sb.String(), Params: p.m}
}

// countStatement renders a SELECT COUNT(*) over the filter conditions.
// Ordering, limits and includes make no sense when counting and are rejected.
func (q *selectQuery) countStatement() (spanner.Statement, error) {
	if q.order != nil || q.lim != nil || len(q.incs) > 0 {
		return spanner.Statement{}, validationError("count queries accept only filter conditions")
	}
	p := newParams()
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", q.md.table)
	q.appendFilters(&sb, p)
	return spanner.Statement{SQL: sb.String(), Params: p.m}, nil
}

func (q *selectQuery) appendFilters(sb *strings.Builder, p *params) {
	t := q.md.table
	if len(q.wheres) > 0 {
		sb.WriteString(" WHERE ")
		for i, c := range q.wheres {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			c.appendSQL(sb, t, p)
		}
	}
	if q.order != nil {
		sb.WriteString(" ORDER BY ")
		q.order.appendSQL(sb, t, p)
	}
	if q.lim != nil {
		sb.WriteByte(' ')
		q.lim.appendSQL(sb, t, p)
	}
}
