package compile

import (
	"strconv"

	"github.com/vbeck/go-formula/internal/kql"
)

// rangeOperators maps the filter grammar's comparison operators onto
// the document-store range parameter names.
var rangeOperators = map[string]string{
	">":  "gt",
	">=": "gte",
	"<":  "lt",
	"<=": "lte",
}

// filterQuery lowers a parsed kql clause tree into a document-store
// query object suitable as the body of a filter aggregation.
func filterQuery(clause kql.Clause) map[string]any {
	switch c := clause.(type) {
	case *kql.Match:
		if c.Wildcard {
			return map[string]any{
				"wildcard": map[string]any{
					c.Field: map[string]any{"value": c.Value},
				},
			}
		}
		return map[string]any{
			"match": map[string]any{c.Field: matchValue(c.Value)},
		}

	case *kql.Range:
		return map[string]any{
			"range": map[string]any{
				c.Field: map[string]any{rangeOperators[c.Operator]: matchValue(c.Value)},
			},
		}

	case *kql.And:
		clauses := make([]any, len(c.Clauses))
		for i, sub := range c.Clauses {
			clauses[i] = filterQuery(sub)
		}
		return map[string]any{
			"bool": map[string]any{"filter": clauses},
		}

	case *kql.Or:
		clauses := make([]any, len(c.Clauses))
		for i, sub := range c.Clauses {
			clauses[i] = filterQuery(sub)
		}
		return map[string]any{
			"bool": map[string]any{
				"should":               clauses,
				"minimum_should_match": 1,
			},
		}

	case *kql.Not:
		return map[string]any{
			"bool": map[string]any{"must_not": []any{filterQuery(c.Inner)}},
		}
	}

	return map[string]any{"match_all": map[string]any{}}
}

// matchValue converts numeric filter values so that range and match
// queries compare numbers as numbers, not strings.
func matchValue(value string) any {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
