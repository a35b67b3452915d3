package internal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lychee-technology/schemata"
	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() schemata.DialectName { return schemata.DialectSQLite }

func (sqliteDialect) DriverName() string { return "sqlite" }

// DSN sets a driver-level busy timeout. Writers are serialized by the file
// lock, so it only covers readers outside the engine.
func (sqliteDialect) DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

func (d sqliteDialect) CreateTable(model *schemata.ModelDefinition) []string {
	cols := []string{
		quoteIdent(schemata.ColumnID) + " INTEGER PRIMARY KEY AUTOINCREMENT",
		quoteIdent(schemata.ColumnOwner) + " BIGINT",
		quoteIdent(schemata.ColumnCreateTime) + " DATETIME NOT NULL DEFAULT (DATETIME('now'))",
		quoteIdent(schemata.ColumnUpdateTime) + " DATETIME NOT NULL DEFAULT (DATETIME('now'))",
	}
	for i := range model.Fields {
		cols = append(cols, columnDef(d, &model.Fields[i]))
	}
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(model.Name), strings.Join(cols, ", ")),
	}
}

// AddColumn backfills required columns with the type's zero value since
// SQLite refuses NOT NULL additions without a default.
func (d sqliteDialect) AddColumn(table string, f *schemata.FieldDefinition) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), columnDef(d, f))
	if !f.Optional {
		stmt += " DEFAULT " + d.Literal(f.Type.Zero())
	}
	return stmt
}

func (sqliteDialect) ListTables() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (sqliteDialect) ListColumns() string {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid"
}

func (sqliteDialect) Now() string { return "DATETIME('now')" }

func (sqliteDialect) Bind(v schemata.Value) any {
	if b, ok := v.Bool(); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v.Interface()
}

func (sqliteDialect) Literal(v schemata.Value) string {
	return literal(v, "1", "0")
}
