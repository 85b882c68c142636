// Package database builds parameterised SELECT statements with sanitised identifiers.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"

	defaultLimit  = -1
	defaultOffset = -1
)

// Condition is a single predicate joined with AND in the WHERE clause.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []OrderTerm
	Limit      int
	Offset     int
}

// OrderTerm is one ORDER BY column; Dir is ASC or DESC, anything else uses the server default.
type OrderTerm struct {
	Column string
	Dir    string
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  defaultLimit,
		Offset: defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy appends an ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = append(o.OrderBy, OrderTerm{Column: column, Dir: direction})
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// BuildListQuery constructs a SQL query string and arguments from options.
//
//	query, args := BuildListQuery(NewListQueryOptions("job_history",
//		WithColumns("id", "status"),
//		WithCondition(WhereCond("type", Equal, "webhook.deliver")),
//		WithOrderBy("completed_at", "DESC"),
//		WithLimit(50),
//	))
//	// SELECT "id", "status" FROM "job_history" WHERE "type" = $1 ORDER BY "completed_at" DESC LIMIT $2
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(buildSelectClause(options))
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	whereClause, args, next := buildWhereClause(options.Conditions, 1)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}
	if options.CountOnly {
		return query.String(), args
	}

	for i, term := range options.OrderBy {
		if i == 0 {
			query.WriteString(" ORDER BY ")
		} else {
			query.WriteString(", ")
		}
		query.WriteString(sanitizeIdentifier(term.Column))
		if dir := strings.ToUpper(term.Dir); dir == "ASC" || dir == "DESC" {
			query.WriteString(" " + dir)
		}
	}

	if options.Limit != defaultLimit {
		fmt.Fprintf(&query, " LIMIT $%d", next)
		args = append(args, options.Limit)
		next++
	}
	if options.Offset != defaultOffset {
		fmt.Fprintf(&query, " OFFSET $%d", next)
		args = append(args, options.Offset)
	}
	return query.String(), args
}

func buildSelectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(options.Columns))
	for i, c := range options.Columns {
		cols[i] = sanitizeIdentifier(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " "
}

func buildWhereClause(conds []Condition, startParam int) (string, []any, int) {
	parts := make([]string, 0, len(conds))
	args := []any{}
	param := startParam

	for _, cond := range conds {
		if cond.Field == "" {
			continue
		}
		field := sanitizeIdentifier(cond.Field)
		switch cond.Type {
		case In:
			rv := reflect.ValueOf(cond.Value)
			if rv.Kind() != reflect.Slice || rv.Len() == 0 {
				continue
			}
			placeholders := make([]string, rv.Len())
			for i := range rv.Len() {
				placeholders[i] = fmt.Sprintf("$%d", param)
				args = append(args, rv.Index(i).Interface())
				param++
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")))
		case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
			parts = append(parts, fmt.Sprintf("%s %s $%d", field, cond.Type, param))
			args = append(args, cond.Value)
			param++
		}
	}

	if len(parts) == 0 {
		return "", args, param
	}
	return "WHERE " + strings.Join(parts, " AND "), args, param
}
