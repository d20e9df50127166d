package session

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"sqlmodel/internal/model"
	"sqlmodel/internal/sqlerr"
	"sqlmodel/internal/value"
)

// snapshot is the canonical byte image of an object at load or flush
// time.
type snapshot struct {
	data  []byte
	taken time.Time
}

// ChangeTracker detects dirty objects by comparing their canonical
// serialization against the stored snapshot.
type ChangeTracker struct {
	snapshots map[ObjectKey]snapshot
}

// NewChangeTracker returns an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{snapshots: make(map[ObjectKey]snapshot)}
}

// serialize renders the object's row form as canonical JSON: one
// object keyed by column name, keys sorted by the encoder.
func serialize(m model.Model) ([]byte, error) {
	byColumn := make(map[string]value.Value)
	for _, f := range m.ToRow() {
		byColumn[f.Name] = f.Value
	}
	data, err := json.Marshal(byColumn)
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.Serde, err, "snapshot %s", m.TableName())
	}
	return data, nil
}

// Snapshot stores the current image of obj under key.
func (t *ChangeTracker) Snapshot(key ObjectKey, obj model.Model) error {
	data, err := serialize(obj)
	if err != nil {
		return err
	}
	t.snapshots[key] = snapshot{data: data, taken: time.Now()}
	return nil
}

// HasSnapshot reports whether key has a stored image.
func (t *ChangeTracker) HasSnapshot(key ObjectKey) bool {
	_, ok := t.snapshots[key]
	return ok
}

// IsDirty reports whether obj's current image differs from its
// snapshot; an object without a snapshot is dirty by definition.
func (t *ChangeTracker) IsDirty(key ObjectKey, obj model.Model) bool {
	snap, ok := t.snapshots[key]
	if !ok {
		return true
	}
	data, err := serialize(obj)
	if err != nil {
		return true
	}
	return !bytes.Equal(snap.data, data)
}

// ChangedFields parses the stored and current images into generic
// trees and returns the sorted field names whose sub-values differ.
// Without a snapshot every field counts as changed.
func (t *ChangeTracker) ChangedFields(key ObjectKey, obj model.Model) ([]string, error) {
	current, err := serialize(obj)
	if err != nil {
		return nil, err
	}
	snap, ok := t.snapshots[key]
	if !ok {
		return fieldNames(current)
	}
	var oldTree, newTree map[string]json.RawMessage
	if err := json.Unmarshal(snap.data, &oldTree); err != nil {
		return nil, sqlerr.Wrap(sqlerr.Serde, err, "parse stored snapshot")
	}
	if err := json.Unmarshal(current, &newTree); err != nil {
		return nil, sqlerr.Wrap(sqlerr.Serde, err, "parse current snapshot")
	}
	changed := make([]string, 0)
	for name, newVal := range newTree {
		oldVal, had := oldTree[name]
		if !had || !bytes.Equal(oldVal, newVal) {
			changed = append(changed, name)
		}
	}
	for name := range oldTree {
		if _, still := newTree[name]; !still {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func fieldNames(data []byte) ([]string, error) {
	var tree map[string]json.RawMessage
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, sqlerr.Wrap(sqlerr.Serde, err, "parse snapshot")
	}
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Refresh re-snapshots obj after a successful flush.
func (t *ChangeTracker) Refresh(key ObjectKey, obj model.Model) error {
	return t.Snapshot(key, obj)
}

// Clear drops one snapshot.
func (t *ChangeTracker) Clear(key ObjectKey) {
	delete(t.snapshots, key)
}

// ClearAll drops every snapshot.
func (t *ChangeTracker) ClearAll() {
	t.snapshots = make(map[ObjectKey]snapshot)
}
