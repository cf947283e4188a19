// Package lint scans migration SQL for patterns that are unsafe to re-run.
//
// The rules are heuristic text matches over individual statements, not a SQL
// parse. False positives and negatives are an accepted trade-off; the
// findings are advisory unless the caller opts into a lint gate.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlward/sqlward/migrate/source"
)

// Severity classifies a finding.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Finding is one rule violation in one file.
type Finding struct {
	File     string
	Rule     string
	Severity Severity
	Message  string
}

// Rule matches risky SQL. Pattern flags a statement; Guard, when it also
// matches, exempts it. Rules are evaluated in order per statement.
type Rule struct {
	Name     string
	Severity Severity
	Pattern  *regexp.Regexp
	Guard    *regexp.Regexp
	Message  string
	Doc      string
}

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "create-table-if-not-exists",
			Severity: Warning,
			Pattern:  regexp.MustCompile(`(?is)\bCREATE\s+TABLE\b`),
			Guard:    regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+IF\s+NOT\s+EXISTS\b`),
			Message:  "CREATE TABLE without IF NOT EXISTS fails when re-run",
			Doc:      "`CREATE TABLE foo` errors if the table already exists. Prefer `CREATE TABLE IF NOT EXISTS foo` so a re-run after a partial failure is harmless.",
		},
		{
			Name:     "create-index-if-not-exists",
			Severity: Warning,
			Pattern:  regexp.MustCompile(`(?is)\bCREATE\s+(?:UNIQUE\s+)?INDEX\b`),
			Guard:    regexp.MustCompile(`(?is)\bCREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:CONCURRENTLY\s+)?IF\s+NOT\s+EXISTS\b`),
			Message:  "CREATE INDEX without IF NOT EXISTS fails when re-run",
			Doc:      "`CREATE INDEX idx` errors if the index already exists. Prefer `CREATE INDEX IF NOT EXISTS idx`.",
		},
		{
			Name:     "add-column-if-not-exists",
			Severity: Warning,
			Pattern:  regexp.MustCompile(`(?is)\bALTER\s+TABLE\b.*\bADD\s+COLUMN\b`),
			Guard:    regexp.MustCompile(`(?is)\bADD\s+COLUMN\s+IF\s+NOT\s+EXISTS\b`),
			Message:  "ADD COLUMN without IF NOT EXISTS fails when re-run",
			Doc:      "`ALTER TABLE t ADD COLUMN c` errors if the column already exists. Prefer `ADD COLUMN IF NOT EXISTS c` where the database supports it.",
		},
		{
			Name:     "drop-if-exists",
			Severity: Error,
			Pattern:  regexp.MustCompile(`(?is)\bDROP\s+(?:TABLE|INDEX|VIEW|SEQUENCE|TRIGGER|COLUMN)\b`),
			Guard:    regexp.MustCompile(`(?is)\bDROP\s+(?:TABLE|INDEX|VIEW|SEQUENCE|TRIGGER|COLUMN)\s+(?:CONCURRENTLY\s+)?IF\s+EXISTS\b`),
			Message:  "DROP without IF EXISTS fails when re-run",
			Doc:      "`DROP TABLE t` errors once the object is gone. Prefer `DROP TABLE IF EXISTS t` so the statement is safe to repeat.",
		},
		{
			Name:     "insert-on-conflict",
			Severity: Warning,
			Pattern:  regexp.MustCompile(`(?is)\bINSERT\s+INTO\b`),
			Guard:    regexp.MustCompile(`(?is)\bON\s+(?:CONFLICT|DUPLICATE\s+KEY)\b|\bINSERT\s+(?:OR\s+IGNORE|IGNORE)\b`),
			Message:  "bare INSERT duplicates rows when re-run; add an ON CONFLICT guard",
			Doc:      "A bare `INSERT INTO t VALUES (...)` inserts a second copy on every re-run. Guard it with `ON CONFLICT DO NOTHING` (or the dialect equivalent).",
		},
		{
			Name:     "no-transaction-control",
			Severity: Error,
			Pattern:  regexp.MustCompile(`(?is)^\s*(?:BEGIN|COMMIT|ROLLBACK|START\s+TRANSACTION)\b`),
			Message:  "migration files must not control transactions; the runner owns transaction boundaries",
			Doc:      "The runner wraps each migration in its own transaction and records the ledger row inside it. A `BEGIN`/`COMMIT` inside the file breaks that atomicity contract.",
		},
	}
}

// Run evaluates the rules against every statement of a single file.
func Run(file source.MigrationFile, rules []Rule) []Finding {
	var findings []Finding
	for _, stmt := range splitStatements(file.RawContent) {
		for _, rule := range rules {
			if !rule.Pattern.MatchString(stmt) {
				continue
			}
			if rule.Guard != nil && rule.Guard.MatchString(stmt) {
				continue
			}
			findings = append(findings, Finding{
				File:     file.Name(),
				Rule:     rule.Name,
				Severity: rule.Severity,
				Message:  rule.Message,
			})
		}
	}
	return findings
}

// RunAll lints every file with the given rules.
func RunAll(files []source.MigrationFile, rules []Rule) []Finding {
	var findings []Finding
	for _, f := range files {
		findings = append(findings, Run(f, rules)...)
	}
	return findings
}

// HasErrors reports whether any finding carries error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == Error {
			return true
		}
	}
	return false
}

// Catalogue renders the rule set as a markdown document.
func Catalogue(rules []Rule) string {
	var b strings.Builder
	b.WriteString("# Idempotency lint rules\n\n")
	b.WriteString("Heuristic text checks, not a SQL parser. Findings are advisory unless the lint gate is enabled.\n\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", r.Name, r.Severity, r.Doc)
	}
	return b.String()
}

// splitStatements is a naive splitter on semicolons. Statements containing
// quoted semicolons will be split incorrectly, which is acceptable for a
// heuristic linter.
func splitStatements(sqlText string) []string {
	var stmts []string
	for _, part := range strings.Split(sqlText, ";") {
		part = stripLineComments(part)
		if strings.TrimSpace(part) == "" {
			continue
		}
		stmts = append(stmts, part)
	}
	return stmts
}

func stripLineComments(stmt string) string {
	var lines []string
	for _, line := range strings.Split(stmt, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
