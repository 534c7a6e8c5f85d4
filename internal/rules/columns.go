package rules

import (
	"regexp"
	"strings"
)

var (
	stringLiteralRe = regexp.MustCompile(`'[^']*'`)
	columnRefRe     = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)
	castColRe       = regexp.MustCompile(`\(([a-zA-Z_]\w*)\)::`)
	bareColRe       = regexp.MustCompile(`\(([a-zA-Z_]\w*)\s*(?:=|<>|<=|>=|<|>|~~)`)
)

// ExtractConditionColumns pulls column names out of a planner condition
// string such as "(users.email = 'x')" or "((status)::text = 'open')".
// Order follows first appearance; duplicates are dropped.
func ExtractConditionColumns(cond string) []string {
	if cond == "" {
		return nil
	}
	cleaned := stringLiteralRe.ReplaceAllString(cond, "")
	seen := make(map[string]bool)
	var cols []string
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	for _, m := range columnRefRe.FindAllStringSubmatch(cleaned, -1) {
		add(m[2])
	}
	for _, m := range castColRe.FindAllStringSubmatch(cleaned, -1) {
		add(m[1])
	}
	for _, m := range bareColRe.FindAllStringSubmatch(cleaned, -1) {
		add(m[1])
	}
	return cols
}

// joinColumnForRelation finds the column a join condition references for
// the given relation (or alias), e.g. "o.user_id" -> "user_id" when the
// scan side is orders aliased o.
func joinColumnForRelation(cond, relation, alias string) string {
	if cond == "" {
		return ""
	}
	condLower := strings.ToLower(cond)
	for _, prefix := range []string{alias, relation} {
		if prefix == "" {
			continue
		}
		for _, col := range ExtractConditionColumns(cond) {
			if strings.Contains(condLower, strings.ToLower(prefix)+"."+strings.ToLower(col)) {
				return col
			}
		}
	}
	return ""
}
