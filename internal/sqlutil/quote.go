// Package sqlutil provides SQL identifier helpers.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QualifiedColumn renders `table`.`column`.
func QualifiedColumn(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}

// QualifiedColumns qualifies every column with table.
func QualifiedColumns(table string, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = QualifiedColumn(table, col)
	}
	return out
}
