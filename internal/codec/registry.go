package codec

// Category groups SQL types for format-selection decisions.
type Category int

const (
	CatUnknown Category = iota
	CatBoolean
	CatNumeric
	CatString
	CatBinary
	CatDateTime
	CatJSON
	CatUUID
	CatArray
	CatRange
	CatNetwork
	CatGeometric
	CatComposite
)

// Payload-size sentinels for TypeInfo.Size.
const (
	SizeVariable       = -1
	SizeNullTerminated = -2
)

// TypeInfo describes one wire type of a dialect's registry.
type TypeInfo struct {
	// ID is the dialect's type identifier: PostgreSQL OID, MySQL
	// field-type code, or SQLite storage class.
	ID   int32
	Name string
	Cat  Category
	// Size is the fixed payload size in bytes, or a Size* sentinel.
	Size int16
	// ElemID / ArrayID cross-link array types with their element type;
	// zero when not applicable.
	ElemID  int32
	ArrayID int32
	// Binary reports whether the binary wire format is supported.
	Binary bool
}

// Registry maps type identifiers to their descriptions.
type Registry struct {
	byID   map[int32]*TypeInfo
	byName map[string]*TypeInfo
}

// NewRegistry builds a registry over the given types.
func NewRegistry(infos []TypeInfo) *Registry {
	r := &Registry{
		byID:   make(map[int32]*TypeInfo, len(infos)),
		byName: make(map[string]*TypeInfo, len(infos)),
	}
	for i := range infos {
		info := &infos[i]
		r.byID[info.ID] = info
		if _, dup := r.byName[info.Name]; !dup {
			r.byName[info.Name] = info
		}
	}
	return r
}

// Get looks a type up by identifier.
func (r *Registry) Get(id int32) (*TypeInfo, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// ByName looks a type up by canonical name.
func (r *Registry) ByName(name string) (*TypeInfo, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Category returns the category for id, CatUnknown for unregistered ids.
func (r *Registry) Category(id int32) Category {
	if t, ok := r.byID[id]; ok {
		return t.Cat
	}
	return CatUnknown
}

// SupportsBinary reports whether id has a binary wire format.
func (r *Registry) SupportsBinary(id int32) bool {
	if t, ok := r.byID[id]; ok {
		return t.Binary
	}
	return false
}

// Register adds or replaces a type description.
func (r *Registry) Register(info TypeInfo) {
	cp := info
	r.byID[cp.ID] = &cp
	r.byName[cp.Name] = &cp
}
