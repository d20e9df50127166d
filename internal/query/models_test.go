package query

import (
	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// hero is the test model: auto-increment id, name, age.
type hero struct {
	ID   *int64
	Name string
	Age  *int64
}

func (h *hero) TableName() string    { return "heroes" }
func (h *hero) PrimaryKey() []string { return []string{"id"} }

func (h *hero) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.KindText},
		{Name: "age", Type: value.KindInt, Nullable: true},
	}
}

func optInt(p *int64) value.Value {
	if p == nil {
		return value.Null()
	}
	return value.BigInt(*p)
}

func (h *hero) ToRow() []model.Field {
	return []model.Field{
		{Name: "id", Value: optInt(h.ID)},
		{Name: "name", Value: value.Text(h.Name)},
		{Name: "age", Value: optInt(h.Age)},
	}
}

func (h *hero) LoadRow(row *value.Row) error {
	id, err := row.NullInt64("id")
	if err != nil {
		return err
	}
	h.ID = id
	name, err := row.String("name")
	if err != nil {
		return err
	}
	h.Name = name
	age, err := row.NullInt64("age")
	if err != nil {
		return err
	}
	h.Age = age
	return nil
}

func (h *hero) PrimaryKeyValue() []value.Value { return []value.Value{optInt(h.ID)} }
func (h *hero) IsNew() bool                    { return h.ID == nil }

func i64(v int64) *int64 { return &v }

// eventLog has no primary key at all.
type eventLog struct {
	Kind string
	Data string
}

func (e *eventLog) TableName() string    { return "event_log" }
func (e *eventLog) PrimaryKey() []string { return nil }

func (e *eventLog) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "kind", Type: value.KindText},
		{Name: "data", Type: value.KindText},
	}
}

func (e *eventLog) ToRow() []model.Field {
	return []model.Field{
		{Name: "kind", Value: value.Text(e.Kind)},
		{Name: "data", Value: value.Text(e.Data)},
	}
}

func (e *eventLog) LoadRow(row *value.Row) error {
	kind, err := row.String("kind")
	if err != nil {
		return err
	}
	e.Kind = kind
	data, err := row.String("data")
	if err != nil {
		return err
	}
	e.Data = data
	return nil
}

func (e *eventLog) PrimaryKeyValue() []value.Value { return nil }
func (e *eventLog) IsNew() bool                    { return true }

// autoOnly has a single auto-increment column.
type autoOnly struct {
	ID *int64
}

func (a *autoOnly) TableName() string    { return "counters" }
func (a *autoOnly) PrimaryKey() []string { return []string{"id"} }

func (a *autoOnly) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "id", Type: value.KindBigInt, PrimaryKey: true, AutoIncrement: true},
	}
}

func (a *autoOnly) ToRow() []model.Field {
	return []model.Field{{Name: "id", Value: optInt(a.ID)}}
}

func (a *autoOnly) LoadRow(row *value.Row) error {
	id, err := row.NullInt64("id")
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (a *autoOnly) PrimaryKeyValue() []value.Value { return []value.Value{optInt(a.ID)} }
func (a *autoOnly) IsNew() bool                    { return a.ID == nil }

// pkOnly is a composite-key link row with no non-key columns.
type pkOnly struct {
	A int64
	B int64
}

func (p *pkOnly) TableName() string    { return "pairs" }
func (p *pkOnly) PrimaryKey() []string { return []string{"a", "b"} }

func (p *pkOnly) Fields() []model.FieldInfo {
	return []model.FieldInfo{
		{Name: "a", Type: value.KindBigInt, PrimaryKey: true},
		{Name: "b", Type: value.KindBigInt, PrimaryKey: true},
	}
}

func (p *pkOnly) ToRow() []model.Field {
	return []model.Field{
		{Name: "a", Value: value.BigInt(p.A)},
		{Name: "b", Value: value.BigInt(p.B)},
	}
}

func (p *pkOnly) LoadRow(row *value.Row) error {
	a, err := row.Int64("a")
	if err != nil {
		return err
	}
	p.A = a
	b, err := row.Int64("b")
	if err != nil {
		return err
	}
	p.B = b
	return nil
}

func (p *pkOnly) PrimaryKeyValue() []value.Value {
	return []value.Value{value.BigInt(p.A), value.BigInt(p.B)}
}
func (p *pkOnly) IsNew() bool { return false }
