// Package sqlbundle carries the embedded DDL for the SQL-backed lineage
// stores.
package sqlbundle

import (
	_ "embed"
	"strings"
)

var (
	//go:embed sqlite.sql
	sqliteDDL string
	//go:embed postgres.sql
	postgresDDL string
)

// SQLite returns the DDL for the single-table sqlite snapshot store.
func SQLite() string { return sqliteDDL }

// Postgres returns the DDL for the normalized Postgres schema.
func Postgres() string { return postgresDDL }

// Tables lists the normalized Postgres tables so that a table only references
// tables before it.
func Tables() []string {
	return []string{"artifact_types", "artifacts", "protocols", "runs", "protocol_applications", "edges"}
}

// SplitStatements breaks a DDL script on semicolons outside quoted text.
// "--" comments run to end of line and are dropped; a trailing statement
// without a terminator is kept as is.
func SplitStatements(ddl string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote rune
	)
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	runes := []rune(ddl)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
			continue
		case r == ';':
			cur.WriteRune(r)
			emit()
			continue
		}
		cur.WriteRune(r)
	}
	emit()
	return stmts
}
