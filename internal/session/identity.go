// Package session implements the unit-of-work machinery: object keys
// and the identity map, snapshot-based change tracking, the flush plan
// with cycle-aware ordering, link-table reconciliation, and the
// Session that orchestrates them over a connection.
package session

import (
	"hash/fnv"
	"reflect"

	"sqlmodel/internal/model"
	"sqlmodel/internal/value"
)

// ObjectKey identifies one persistent object: the model's runtime type
// plus a deterministic 64-bit hash of its ordered primary-key values.
// Equality is exact; a zero hash is as valid as any other.
type ObjectKey struct {
	Type reflect.Type
	Hash uint64
}

// KeyOf builds the key for an instance.
func KeyOf(m model.Model) ObjectKey {
	return KeyFor(m, m.PrimaryKeyValue())
}

// KeyFor builds a key from explicit primary-key values, for lookups
// before an instance exists.
func KeyFor(m model.Model, pk []value.Value) ObjectKey {
	return ObjectKey{Type: reflect.TypeOf(m), Hash: hashValues(pk)}
}

// hashValues folds the kind and canonical rendering of each value into
// FNV-1a so distinct kinds with equal payloads stay distinct.
func hashValues(vals []value.Value) uint64 {
	h := fnv.New64a()
	for _, v := range vals {
		h.Write([]byte{byte(v.Kind()), 0x1f})
		h.Write([]byte(v.String()))
		h.Write([]byte{0x1e})
	}
	return h.Sum64()
}

// IdentityMap holds one strongly-referenced loaded object per key.
type IdentityMap struct {
	objects map[ObjectKey]model.Model
}

// NewIdentityMap returns an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{objects: make(map[ObjectKey]model.Model)}
}

// Get returns the object for key, if loaded.
func (im *IdentityMap) Get(key ObjectKey) (model.Model, bool) {
	m, ok := im.objects[key]
	return m, ok
}

// Put stores obj under key, replacing any previous occupant.
func (im *IdentityMap) Put(key ObjectKey, obj model.Model) {
	im.objects[key] = obj
}

// Resolve returns the canonical object for fresh: on a hit the
// existing object wins and fresh is discarded; on a miss fresh is
// inserted and returned.
func (im *IdentityMap) Resolve(fresh model.Model) (model.Model, bool) {
	key := KeyOf(fresh)
	if existing, ok := im.objects[key]; ok {
		return existing, false
	}
	im.objects[key] = fresh
	return fresh, true
}

// Remove drops key.
func (im *IdentityMap) Remove(key ObjectKey) {
	delete(im.objects, key)
}

// Len returns the number of held objects.
func (im *IdentityMap) Len() int { return len(im.objects) }

// Clear drops everything.
func (im *IdentityMap) Clear() {
	im.objects = make(map[ObjectKey]model.Model)
}
