// Package executor runs generated SQL against the target database behind
// a read-only safety policy.
package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/querybuddy/querybuddy/domain/query"
)

// forbiddenKeywords are statement types that must never execute,
// regardless of casing or position in the SQL.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE", "INSERT", "UPDATE",
}

var (
	wordSplitter = regexp.MustCompile(`[A-Za-z_]+`)
	limitClause  = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
)

// Policy validates SQL against the read-only rules and bounds result
// size by injecting or clamping a LIMIT clause.
type Policy struct {
	rowCap int
}

// NewPolicy creates a Policy with the given row cap.
func NewPolicy(rowCap int) Policy {
	return Policy{rowCap: rowCap}
}

// RowCap returns the maximum number of rows a query may return.
func (p Policy) RowCap() int { return p.rowCap }

// Validate checks the SQL against the safety rules and returns the
// statement that may execute, with the row cap applied. A rejected
// statement returns query.ErrUnsafeQuery; nothing is sent to the
// database on rejection.
func (p Policy) Validate(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		return "", fmt.Errorf("%w: empty statement", query.ErrUnsafeQuery)
	}

	// A semicolon after trimming the trailing one means multiple
	// statements were supplied.
	if strings.Contains(trimmed, ";") {
		return "", fmt.Errorf("%w: multiple statements", query.ErrUnsafeQuery)
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("%w: only SELECT statements are allowed", query.ErrUnsafeQuery)
	}

	for _, word := range wordSplitter.FindAllString(upper, -1) {
		for _, keyword := range forbiddenKeywords {
			if word == keyword {
				return "", fmt.Errorf("%w: forbidden keyword %s", query.ErrUnsafeQuery, keyword)
			}
		}
	}

	return p.applyRowCap(trimmed), nil
}

// applyRowCap appends a LIMIT when none is present and clamps an existing
// LIMIT that exceeds the cap. The injected limit is rowCap+1 so the
// executor can read one extra row and report truncation instead of
// silently cutting the result.
func (p Policy) applyRowCap(sql string) string {
	if p.rowCap <= 0 {
		return sql
	}
	probe := p.rowCap + 1

	match := limitClause.FindStringSubmatchIndex(sql)
	if match == nil {
		return fmt.Sprintf("%s LIMIT %d", sql, probe)
	}

	existing, err := strconv.Atoi(sql[match[2]:match[3]])
	if err != nil || existing <= p.rowCap {
		return sql
	}
	return sql[:match[2]] + strconv.Itoa(probe) + sql[match[3]:]
}
