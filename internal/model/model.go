// Package model defines the record-type contract the builders,
// identity map, and unit of work are polymorphic over, together with
// the per-column FieldInfo metadata and field-level validation.
package model

import (
	"fmt"
	"regexp"
	"strings"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// ReferentialAction is an ON DELETE / ON UPDATE policy.
type ReferentialAction string

const (
	NoAction   ReferentialAction = "NO ACTION"
	Restrict   ReferentialAction = "RESTRICT"
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
)

// FieldInfo is the per-column descriptor a model publishes.
type FieldInfo struct {
	// Name is the logical field name; Column the physical column name
	// (defaults to Name when empty).
	Name   string
	Column string

	// Type is the base SQL type; SQLType, when set, overrides the
	// rendered column type verbatim.
	Type    value.Kind
	SQLType string

	Precision int
	Scale     int

	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool

	// Default is a raw SQL default expression, appended as-is.
	Default string

	// ForeignKey is "table.column"; the referential actions apply to
	// the generated constraint.
	ForeignKey string
	OnDelete   ReferentialAction
	OnUpdate   ReferentialAction

	// Alias is the serialization/validation alias.
	Alias    string
	Computed bool
	// Index, when set, asks the schema builder for a secondary index
	// of that name.
	Index string

	// Validation rules; nil/empty means unconstrained.
	Min       *float64
	Max       *float64
	MinLength *int
	MaxLength *int
	Pattern   string
}

// ColumnName returns the physical column name.
func (f *FieldInfo) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Field is one (column, value) pair of a model's row form.
type Field struct {
	Name  string
	Value value.Value
}

// Model is the polymorphism point for the builders, identity-map
// keying, and the unit of work. Implementations are pointer types.
type Model interface {
	TableName() string
	// PrimaryKey returns the ordered primary-key column list.
	PrimaryKey() []string
	Fields() []FieldInfo
	// ToRow returns the ordered (column, value) pairs of the instance.
	ToRow() []Field
	// LoadRow populates the instance from a result row.
	LoadRow(row *value.Row) error
	// PrimaryKeyValue returns the instance's PK values in PrimaryKey
	// order.
	PrimaryKeyValue() []value.Value
	// IsNew reports whether the instance has not been persisted yet.
	IsNew() bool
}

// FieldByColumn finds the FieldInfo for a physical column name.
func FieldByColumn(m Model, column string) *FieldInfo {
	fields := m.Fields()
	for i := range fields {
		if fields[i].ColumnName() == column {
			return &fields[i]
		}
	}
	return nil
}

// SQLTypeName renders the canonical SQL name of a field's type for a
// dialect, honoring the raw override.
func (f *FieldInfo) SQLTypeName(d dialect.Dialect) string {
	if f.SQLType != "" {
		return f.SQLType
	}
	switch f.Type {
	case value.KindBool:
		if d == dialect.MySQL {
			return "TINYINT(1)"
		}
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "BOOLEAN"
	case value.KindTinyInt:
		if d == dialect.Postgres {
			return "SMALLINT"
		}
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "TINYINT"
	case value.KindSmallInt:
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "SMALLINT"
	case value.KindInt:
		if d == dialect.MySQL {
			return "INT"
		}
		return "INTEGER"
	case value.KindBigInt:
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case value.KindFloat:
		if d == dialect.Postgres {
			return "REAL"
		}
		if d == dialect.SQLite {
			return "REAL"
		}
		return "FLOAT"
	case value.KindDouble:
		if d == dialect.Postgres {
			return "DOUBLE PRECISION"
		}
		if d == dialect.SQLite {
			return "REAL"
		}
		return "DOUBLE"
	case value.KindDecimal:
		name := "NUMERIC"
		if d == dialect.MySQL {
			name = "DECIMAL"
		}
		if f.Precision > 0 {
			if f.Scale > 0 {
				return fmt.Sprintf("%s(%d,%d)", name, f.Precision, f.Scale)
			}
			return fmt.Sprintf("%s(%d)", name, f.Precision)
		}
		return name
	case value.KindText:
		if f.Precision > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Precision)
		}
		return "TEXT"
	case value.KindBytes:
		switch d {
		case dialect.Postgres:
			return "BYTEA"
		case dialect.MySQL:
			return "BLOB"
		default:
			return "BLOB"
		}
	case value.KindDate:
		return "DATE"
	case value.KindTime:
		return "TIME"
	case value.KindTimestamp:
		if d == dialect.MySQL {
			return "DATETIME"
		}
		if d == dialect.SQLite {
			return "DATETIME"
		}
		return "TIMESTAMP"
	case value.KindTimestampTz:
		if d == dialect.Postgres {
			return "TIMESTAMPTZ"
		}
		if d == dialect.MySQL {
			return "TIMESTAMP"
		}
		return "DATETIME"
	case value.KindUUID:
		switch d {
		case dialect.Postgres:
			return "UUID"
		case dialect.MySQL:
			return "BINARY(16)"
		default:
			return "UUID"
		}
	case value.KindJSON:
		if d == dialect.SQLite {
			return "TEXT"
		}
		return "JSON"
	case value.KindArray:
		if d == dialect.Postgres {
			return "JSONB"
		}
		if d == dialect.MySQL {
			return "JSON"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// Validate applies the field-level rules to an instance's row form and
// aggregates failures into a Validation error.
func Validate(m Model) error {
	byColumn := make(map[string]value.Value)
	for _, f := range m.ToRow() {
		byColumn[f.Name] = f.Value
	}
	var failures []sqlerr.FieldError
	fields := m.Fields()
	for i := range fields {
		fi := &fields[i]
		v, ok := byColumn[fi.ColumnName()]
		if !ok || v.IsNull() {
			if !fi.Nullable && !fi.AutoIncrement && !fi.PrimaryKey && fi.Default == "" && !fi.Computed {
				failures = append(failures, sqlerr.FieldError{
					Field: fi.Name, Rule: sqlerr.RuleRequired,
					Msg: "value is required",
				})
			}
			continue
		}
		failures = appendNumericRules(failures, fi, v)
		failures = appendStringRules(failures, fi, v)
	}
	if len(failures) == 0 {
		return nil
	}
	return sqlerr.ValidationError(failures)
}

func appendNumericRules(failures []sqlerr.FieldError, fi *FieldInfo, v value.Value) []sqlerr.FieldError {
	if fi.Min == nil && fi.Max == nil {
		return failures
	}
	f, err := value.AsFloat64(v, fi.ColumnName())
	if err != nil {
		return failures
	}
	if fi.Min != nil && f < *fi.Min {
		failures = append(failures, sqlerr.FieldError{
			Field: fi.Name, Rule: sqlerr.RuleMin,
			Msg: fmt.Sprintf("%v is below the minimum %v", f, *fi.Min),
		})
	}
	if fi.Max != nil && f > *fi.Max {
		failures = append(failures, sqlerr.FieldError{
			Field: fi.Name, Rule: sqlerr.RuleMax,
			Msg: fmt.Sprintf("%v is above the maximum %v", f, *fi.Max),
		})
	}
	return failures
}

func appendStringRules(failures []sqlerr.FieldError, fi *FieldInfo, v value.Value) []sqlerr.FieldError {
	if fi.MinLength == nil && fi.MaxLength == nil && fi.Pattern == "" {
		return failures
	}
	s, ok := v.StringVal()
	if !ok {
		return failures
	}
	if fi.MinLength != nil && len(s) < *fi.MinLength {
		failures = append(failures, sqlerr.FieldError{
			Field: fi.Name, Rule: sqlerr.RuleMinLength,
			Msg: fmt.Sprintf("length %d is below the minimum %d", len(s), *fi.MinLength),
		})
	}
	if fi.MaxLength != nil && len(s) > *fi.MaxLength {
		failures = append(failures, sqlerr.FieldError{
			Field: fi.Name, Rule: sqlerr.RuleMaxLength,
			Msg: fmt.Sprintf("length %d is above the maximum %d", len(s), *fi.MaxLength),
		})
	}
	if fi.Pattern != "" {
		re, err := regexp.Compile(fi.Pattern)
		if err == nil && !re.MatchString(s) {
			failures = append(failures, sqlerr.FieldError{
				Field: fi.Name, Rule: sqlerr.RulePattern,
				Msg: fmt.Sprintf("%q does not match %q", s, fi.Pattern),
			})
		}
	}
	return failures
}

// ForeignKeyTable splits a "table.column" reference.
func ForeignKeyTable(ref string) (table, column string, ok bool) {
	i := strings.IndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
