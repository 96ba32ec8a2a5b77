package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// dialect supplies the SQL fragments whose spelling differs between backends.
// Every fragment takes a column expression and returns an expression; where a
// fragment binds a value it contains exactly one "?".
type dialect interface {
	// monthKey renders a timestamp as "YYYY-MM".
	monthKey(col string) string
	// dayKey renders a timestamp as "YYYY-MM-DD".
	dayKey(col string) string
	year(col string) string
	month(col string) string
	// epoch converts a timestamp (or an aggregate of one) to unix seconds.
	epoch(col string) string
	// joinNames concatenates a text column across a group with listSeparator.
	joinNames(col string) string
	// contains is a case-sensitive substring test against one bound value;
	// substringArg builds that value from the raw needle.
	contains(col string) string
	substringArg(needle string) string
}

const listSeparator = "||"

func dialectFor(db *gorm.DB) dialect {
	switch db.Dialector.Name() {
	case "sqlite":
		return sqliteDialect{}
	case "mysql":
		return mysqlDialect{}
	default:
		return postgresDialect{}
	}
}

type postgresDialect struct{}

func (postgresDialect) monthKey(col string) string {
	return fmt.Sprintf("to_char(date_trunc('month', %s), 'YYYY-MM')", col)
}

func (postgresDialect) dayKey(col string) string {
	return fmt.Sprintf("to_char(date_trunc('day', %s), 'YYYY-MM-DD')", col)
}

func (postgresDialect) year(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(YEAR FROM %s) AS INTEGER)", col)
}

func (postgresDialect) month(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(MONTH FROM %s) AS INTEGER)", col)
}

func (postgresDialect) epoch(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(EPOCH FROM %s) AS BIGINT)", col)
}

func (postgresDialect) joinNames(col string) string {
	return fmt.Sprintf("string_agg(%s, '%s')", col, listSeparator)
}

func (postgresDialect) contains(col string) string { return col + " LIKE ?" }

func (postgresDialect) substringArg(needle string) string { return "%" + needle + "%" }

type mysqlDialect struct{}

func (mysqlDialect) monthKey(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", col) }

func (mysqlDialect) dayKey(col string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col)
}

func (mysqlDialect) year(col string) string { return fmt.Sprintf("YEAR(%s)", col) }

func (mysqlDialect) month(col string) string { return fmt.Sprintf("MONTH(%s)", col) }

func (mysqlDialect) epoch(col string) string { return fmt.Sprintf("UNIX_TIMESTAMP(%s)", col) }

func (mysqlDialect) joinNames(col string) string {
	return fmt.Sprintf("GROUP_CONCAT(%s SEPARATOR '%s')", col, listSeparator)
}

func (mysqlDialect) contains(col string) string { return col + " LIKE BINARY ?" }

func (mysqlDialect) substringArg(needle string) string { return "%" + needle + "%" }

// sqlite stores gorm timestamps as offset-suffixed text, which its date
// functions parse and normalise to UTC, so month, day and year buckets are UTC
// whatever the writer's zone was. LIKE is case-insensitive there, so substring matching uses instr.
type sqliteDialect struct{}

func (sqliteDialect) monthKey(col string) string { return fmt.Sprintf("strftime('%%Y-%%m', %s)", col) }

func (sqliteDialect) dayKey(col string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col)
}

func (sqliteDialect) year(col string) string {
	return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col)
}

func (sqliteDialect) month(col string) string {
	return fmt.Sprintf("CAST(strftime('%%m', %s) AS INTEGER)", col)
}

func (sqliteDialect) epoch(col string) string {
	return fmt.Sprintf("CAST(strftime('%%s', %s) AS INTEGER)", col)
}

func (sqliteDialect) joinNames(col string) string {
	return fmt.Sprintf("group_concat(%s, '%s')", col, listSeparator)
}

func (sqliteDialect) contains(col string) string { return "instr(" + col + ", ?) > 0" }

func (sqliteDialect) substringArg(needle string) string { return needle }
