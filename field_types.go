package schemata

import "fmt"

// FieldType is the variant tag of a FieldDefinition.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldBoolean   FieldType = "boolean"
	FieldDateTime  FieldType = "datetime"
	FieldUser      FieldType = "user"
	FieldReference FieldType = "reference"
)

// DialectName identifies an embedded storage backend.
type DialectName string

const (
	DialectSQLite DialectName = "sqlite"
	DialectDuckDB DialectName = "duckdb"
)

type fieldTypeInfo struct {
	kind     Kind
	jsonType string
	columns  map[DialectName]string
}

// fieldTypes is the single table every per-variant mapping reads from.
var fieldTypes = map[FieldType]fieldTypeInfo{
	FieldString: {
		kind:     KindString,
		jsonType: "string",
		columns:  map[DialectName]string{DialectSQLite: "VARCHAR(128)", DialectDuckDB: "VARCHAR"},
	},
	FieldInteger: {
		kind:     KindInteger,
		jsonType: "integer",
		columns:  map[DialectName]string{DialectSQLite: "BIGINT", DialectDuckDB: "BIGINT"},
	},
	FieldFloat: {
		kind:     KindFloat,
		jsonType: "number",
		columns:  map[DialectName]string{DialectSQLite: "FLOAT", DialectDuckDB: "DOUBLE"},
	},
	FieldBoolean: {
		kind:     KindBoolean,
		jsonType: "boolean",
		columns:  map[DialectName]string{DialectSQLite: "INTEGER", DialectDuckDB: "BOOLEAN"},
	},
	FieldDateTime: {
		kind:     KindDateTime,
		jsonType: "integer",
		columns:  map[DialectName]string{DialectSQLite: "DATETIME", DialectDuckDB: "BIGINT"},
	},
	FieldUser: {
		kind:     KindInteger,
		jsonType: "integer",
		columns:  map[DialectName]string{DialectSQLite: "BIGINT", DialectDuckDB: "BIGINT"},
	},
	FieldReference: {
		kind:     KindInteger,
		jsonType: "integer",
		columns:  map[DialectName]string{DialectSQLite: "BIGINT", DialectDuckDB: "BIGINT"},
	},
}

func (t FieldType) info() fieldTypeInfo {
	info, ok := fieldTypes[t]
	if !ok {
		panic(fmt.Sprintf("schemata: unknown field type %q", string(t)))
	}
	return info
}

// Valid reports whether t is a known variant.
func (t FieldType) Valid() bool {
	_, ok := fieldTypes[t]
	return ok
}

// Kind is the value kind rows carry for fields of this type.
func (t FieldType) Kind() Kind {
	return t.info().kind
}

// JSONType is the JSON Schema type keyword for this type.
func (t FieldType) JSONType() string {
	return t.info().jsonType
}

// ColumnType is the column type used in DDL for the given dialect.
func (t FieldType) ColumnType(dialect DialectName) string {
	col, ok := t.info().columns[dialect]
	if !ok {
		panic(fmt.Sprintf("schemata: no column type for %q on %q", string(t), string(dialect)))
	}
	return col
}

// Zero is the value used to backfill existing rows when a required column
// is added to a table.
func (t FieldType) Zero() Value {
	switch t.Kind() {
	case KindString:
		return StringValue("")
	case KindFloat:
		return FloatValue(0)
	case KindBoolean:
		return BooleanValue(false)
	case KindDateTime:
		return DateTimeValue(0)
	default:
		return IntegerValue(0)
	}
}
