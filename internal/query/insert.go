package query

import (
	"sqlmodel/internal/console"
	"sqlmodel/internal/dialect"
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// conflictAction selects upsert behavior.
type conflictAction int

const (
	conflictNone conflictAction = iota
	conflictDoNothing
	conflictDoUpdate
)

// InsertBuilder emits a single-model INSERT with optional RETURNING
// and ON CONFLICT handling.
type InsertBuilder struct {
	model     model.Model
	returning bool
	conflict  conflictAction
	target    []string
	updateCols []string
}

// Insert starts an INSERT for one model instance.
func Insert(m model.Model) InsertBuilder { return InsertBuilder{model: m} }

// Returning requests RETURNING *.
func (b InsertBuilder) Returning() InsertBuilder {
	b.returning = true
	return b
}

// OnConflictDoNothing appends ON CONFLICT DO NOTHING.
func (b InsertBuilder) OnConflictDoNothing() InsertBuilder {
	b.conflict = conflictDoNothing
	return b
}

// OnConflictDoUpdate upserts on the model's primary key, setting cols
// (or, when empty, every insert column outside the primary key).
func (b InsertBuilder) OnConflictDoUpdate(cols ...string) InsertBuilder {
	b.conflict = conflictDoUpdate
	b.updateCols = cols
	return b
}

// OnConflictTargetDoUpdate upserts on an explicit conflict target.
func (b InsertBuilder) OnConflictTargetDoUpdate(target []string, cols []string) InsertBuilder {
	b.conflict = conflictDoUpdate
	b.target = target
	b.updateCols = cols
	return b
}

// insertCell is one column of the VALUES list after DEFAULT analysis.
type insertCell struct {
	column    string
	val       value.Value
	isDefault bool
}

// analyzeRow classifies each column: an auto-increment field holding
// Null becomes the literal DEFAULT.
func analyzeRow(m model.Model) []insertCell {
	cells := make([]insertCell, 0, len(m.ToRow()))
	for _, f := range m.ToRow() {
		fi := model.FieldByColumn(m, f.Name)
		isDefault := f.Value.IsDefault() ||
			(fi != nil && fi.AutoIncrement && f.Value.IsNull())
		if fi != nil && fi.Computed {
			continue
		}
		cells = append(cells, insertCell{column: f.Name, val: f.Value, isDefault: isDefault})
	}
	return cells
}

// Build renders for d.
//
// DEFAULT columns keep their slot as the literal DEFAULT on dialects
// that accept it inside VALUES; SQLite instead omits the column, and a
// row with every column defaulted becomes INSERT ... DEFAULT VALUES.
func (b InsertBuilder) Build(d dialect.Dialect) (string, []value.Value) {
	fb := NewFragment(d)
	cells := analyzeRow(b.model)
	fb.SQL.WriteString("INSERT INTO ")
	fb.Ident(b.model.TableName())

	kept := cells
	if !d.SupportsDefaultKeyword() {
		kept = kept[:0:0]
		for _, c := range cells {
			if !c.isDefault {
				kept = append(kept, c)
			}
		}
	}
	if len(kept) == 0 {
		fb.SQL.WriteString(" DEFAULT VALUES")
		b.appendReturning(fb, d)
		return fb.SQL.String(), fb.Params
	}

	fb.SQL.WriteString(" (")
	for i, c := range kept {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(c.column)
	}
	fb.SQL.WriteString(") VALUES (")
	for i, c := range kept {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		if c.isDefault {
			fb.SQL.WriteString("DEFAULT")
		} else {
			fb.Bind(c.val)
		}
	}
	fb.SQL.WriteByte(')')

	b.appendConflict(fb, d, columnsOf(kept))
	b.appendReturning(fb, d)
	return fb.SQL.String(), fb.Params
}

func columnsOf(cells []insertCell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.column
	}
	return out
}

// appendConflict renders the upsert clause. A DO UPDATE with no usable
// conflict target, or with an empty computed SET list, downgrades to
// DO NOTHING with a console warning.
func (b InsertBuilder) appendConflict(fb *Fragment, d dialect.Dialect, insertCols []string) {
	if b.conflict == conflictNone {
		return
	}
	if d == dialect.MySQL {
		b.appendConflictMySQL(fb, insertCols)
		return
	}
	if b.conflict == conflictDoNothing {
		fb.SQL.WriteString(" ON CONFLICT DO NOTHING")
		return
	}
	target := b.target
	if len(target) == 0 {
		target = b.model.PrimaryKey()
	}
	if len(target) == 0 {
		console.Warn(nil, "upsert on "+b.model.TableName()+" has no conflict target; downgrading to DO NOTHING")
		fb.SQL.WriteString(" ON CONFLICT DO NOTHING")
		return
	}
	setCols := b.updateCols
	if len(setCols) == 0 {
		pk := make(map[string]bool)
		for _, k := range b.model.PrimaryKey() {
			pk[k] = true
		}
		for _, c := range insertCols {
			if !pk[c] {
				setCols = append(setCols, c)
			}
		}
	}
	if len(setCols) == 0 {
		console.Warn(nil, "upsert on "+b.model.TableName()+" has an empty SET list; downgrading to DO NOTHING")
		fb.SQL.WriteString(" ON CONFLICT DO NOTHING")
		return
	}
	fb.SQL.WriteString(" ON CONFLICT (")
	for i, t := range target {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(t)
	}
	fb.SQL.WriteString(") DO UPDATE SET ")
	for i, c := range setCols {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(c)
		fb.SQL.WriteString(" = EXCLUDED.")
		fb.Ident(c)
	}
}

// appendConflictMySQL renders the ON DUPLICATE KEY UPDATE equivalent.
// DO NOTHING becomes a self-assignment of the first insert column,
// which MySQL treats as a no-op update.
func (b InsertBuilder) appendConflictMySQL(fb *Fragment, insertCols []string) {
	if len(insertCols) == 0 {
		return
	}
	fb.SQL.WriteString(" ON DUPLICATE KEY UPDATE ")
	if b.conflict == conflictDoNothing {
		fb.Ident(insertCols[0])
		fb.SQL.WriteString(" = ")
		fb.Ident(insertCols[0])
		return
	}
	setCols := b.updateCols
	if len(setCols) == 0 {
		pk := make(map[string]bool)
		for _, k := range b.model.PrimaryKey() {
			pk[k] = true
		}
		for _, c := range insertCols {
			if !pk[c] {
				setCols = append(setCols, c)
			}
		}
	}
	if len(setCols) == 0 {
		fb.Ident(insertCols[0])
		fb.SQL.WriteString(" = ")
		fb.Ident(insertCols[0])
		return
	}
	for i, c := range setCols {
		if i > 0 {
			fb.SQL.WriteString(", ")
		}
		fb.Ident(c)
		fb.SQL.WriteString(" = VALUES(")
		fb.Ident(c)
		fb.SQL.WriteByte(')')
	}
}

func (b InsertBuilder) appendReturning(fb *Fragment, d dialect.Dialect) {
	if b.returning && d != dialect.MySQL {
		fb.SQL.WriteString(" RETURNING *")
	}
}
