package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/schemata"
)

// dialect renders the few statements that differ between embedded
// backends. DML is shared: quoted identifiers, '?' placeholders and
// INSERT ... RETURNING work on both.
type dialect interface {
	Name() schemata.DialectName
	DriverName() string
	DSN(path string) string
	CreateTable(model *schemata.ModelDefinition) []string
	AddColumn(table string, field *schemata.FieldDefinition) string
	ListTables() string
	ListColumns() string
	Now() string
	Bind(v schemata.Value) any
	Literal(v schemata.Value) string
}

func dialectFor(name schemata.DialectName) (dialect, error) {
	switch name {
	case schemata.DialectSQLite, "":
		return sqliteDialect{}, nil
	case schemata.DialectDuckDB:
		return duckdbDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// columnDef renders one user field column.
func columnDef(d dialect, f *schemata.FieldDefinition) string {
	def := quoteIdent(f.Name) + " " + f.Type.ColumnType(d.Name())
	if !f.Optional {
		def += " NOT NULL"
	}
	return def
}

// literal renders values that are safe to inline in DDL defaults.
func literal(v schemata.Value, boolTrue, boolFalse string) string {
	switch v.Kind() {
	case schemata.KindString:
		s, _ := v.Str()
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case schemata.KindInteger, schemata.KindDateTime:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10)
	case schemata.KindFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case schemata.KindBoolean:
		if b, _ := v.Bool(); b {
			return boolTrue
		}
		return boolFalse
	}
	return "NULL"
}
