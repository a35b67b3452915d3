package internal

import (
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lychee-technology/schemata"
)

// duckdbDialect stores a model in a DuckDB file. Ids come from a sequence
// per table since DuckDB has no AUTOINCREMENT.
type duckdbDialect struct{}

func (duckdbDialect) Name() schemata.DialectName { return schemata.DialectDuckDB }

func (duckdbDialect) DriverName() string { return "duckdb" }

func (duckdbDialect) DSN(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func sequenceName(table string) string {
	return table + "_id_seq"
}

func (d duckdbDialect) CreateTable(model *schemata.ModelDefinition) []string {
	seq := sequenceName(model.Name)
	cols := []string{
		fmt.Sprintf("%s BIGINT PRIMARY KEY DEFAULT nextval('%s')", quoteIdent(schemata.ColumnID), strings.ReplaceAll(seq, "'", "''")),
		quoteIdent(schemata.ColumnOwner) + " BIGINT",
		quoteIdent(schemata.ColumnCreateTime) + " TIMESTAMP NOT NULL DEFAULT current_timestamp",
		quoteIdent(schemata.ColumnUpdateTime) + " TIMESTAMP NOT NULL DEFAULT current_timestamp",
	}
	for i := range model.Fields {
		cols = append(cols, columnDef(d, &model.Fields[i]))
	}
	return []string{
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", quoteIdent(seq)),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(model.Name), strings.Join(cols, ", ")),
	}
}

// AddColumn cannot attach NOT NULL on DuckDB; required columns are added
// with a zero default and enforced by create.
func (d duckdbDialect) AddColumn(table string, f *schemata.FieldDefinition) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(f.Name), f.Type.ColumnType(d.Name()))
	if !f.Optional {
		stmt += " DEFAULT " + d.Literal(f.Type.Zero())
	}
	return stmt
}

func (duckdbDialect) ListTables() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name"
}

func (duckdbDialect) ListColumns() string {
	return "SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position"
}

func (duckdbDialect) Now() string { return "current_timestamp" }

func (duckdbDialect) Bind(v schemata.Value) any {
	return v.Interface()
}

func (duckdbDialect) Literal(v schemata.Value) string {
	return literal(v, "true", "false")
}
