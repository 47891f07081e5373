package index

import (
	"fmt"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// Op is a comparison operator of a Filter.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLike    Op = "like"
	OpPrefix  Op = "prefix"
	OpIsNull  Op = "null"
	OpNotNull Op = "notnull"
	OpIn      Op = "in"
)

// Condition is a predicate compiled to parameterized SQL.
type Condition interface {
	compile(fields map[string]bool) (string, []any, error)
}

// Filter compares one field against a value.
type Filter struct {
	Field  string
	Op     Op
	Value  any
	Values []any // OpIn only
}

// Eq matches field = v.
func Eq(field string, v any) Filter { return Filter{Field: field, Op: OpEq, Value: v} }

// Ne matches field != v. Rows where field is NULL also match.
func Ne(field string, v any) Filter { return Filter{Field: field, Op: OpNe, Value: v} }

// Like matches a SQL LIKE pattern.
func Like(field, pattern string) Filter { return Filter{Field: field, Op: OpLike, Value: pattern} }

// HasPrefix matches values starting with prefix; wildcards in prefix are literal.
func HasPrefix(field, prefix string) Filter {
	return Filter{Field: field, Op: OpPrefix, Value: prefix}
}

// IsNull matches a missing value.
func IsNull(field string) Filter { return Filter{Field: field, Op: OpIsNull} }

// NotNull matches a present value.
func NotNull(field string) Filter { return Filter{Field: field, Op: OpNotNull} }

// In matches any of vs. An empty list matches nothing.
func In(field string, vs ...any) Filter { return Filter{Field: field, Op: OpIn, Values: vs} }

func (f Filter) compile(fields map[string]bool) (string, []any, error) {
	if !fields[f.Field] {
		return "", nil, apperr.New(apperr.ErrContract, "index: filter", "unknown field %q", f.Field)
	}
	switch f.Op {
	case OpEq:
		return f.Field + " = ?", []any{f.Value}, nil
	case OpNe:
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", f.Field, f.Field), []any{f.Value}, nil
	case OpLike:
		return f.Field + " LIKE ?", []any{f.Value}, nil
	case OpPrefix:
		s, _ := f.Value.(string)
		return f.Field + ` LIKE ? ESCAPE '\'`, []any{escapeLike(s) + "%"}, nil
	case OpIsNull:
		return f.Field + " IS NULL", nil, nil
	case OpNotNull:
		return f.Field + " IS NOT NULL", nil, nil
	case OpIn:
		if len(f.Values) == 0 {
			return "0 = 1", nil, nil
		}
		return fmt.Sprintf("%s IN (%s)", f.Field, placeholders(len(f.Values))), f.Values, nil
	default:
		return "", nil, apperr.New(apperr.ErrContract, "index: filter", "unknown operator %q", f.Op)
	}
}

type group struct {
	join  string
	conds []Condition
}

// And matches when every condition matches.
func And(conds ...Condition) Condition { return group{join: " AND ", conds: conds} }

// Or matches when any condition matches.
func Or(conds ...Condition) Condition { return group{join: " OR ", conds: conds} }

func (g group) compile(fields map[string]bool) (string, []any, error) {
	if len(g.conds) == 0 {
		if g.join == " OR " {
			return "0 = 1", nil, nil
		}
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(g.conds))
	var args []any
	for _, c := range g.conds {
		s, a, err := c.compile(fields)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, s)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, g.join) + ")", args, nil
}

// Compile renders conds, joined with AND, as a WHERE predicate over a table
// with the given columns.
func Compile(cols []Column, conds ...Condition) (string, []any, error) {
	fields := map[string]bool{"id": true}
	for _, c := range cols {
		fields[c.Name] = true
	}
	if len(conds) == 0 {
		return "1 = 1", nil, nil
	}
	where, args, err := group{join: " AND ", conds: conds}.compile(fields)
	if err != nil {
		return "", nil, err
	}
	return where, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
