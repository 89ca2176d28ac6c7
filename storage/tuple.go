package storage

import (
	"fmt"
	"strings"

	"github.com/HITGYA/Mit-6.830/common"
)

// TDItem is one (type, name) entry of a TupleDesc. Names are optional and only used for lookups.
type TDItem struct {
	Type common.Type
	Name string
}

// TupleDesc describes the fixed-width layout of a row: an ordered list of typed, optionally
// named fields. A TupleDesc is immutable after construction.
type TupleDesc struct {
	items   []TDItem
	offsets []int // field index => byte offset within a serialized row
	size    int
}

// NewTupleDesc creates a descriptor for the given types and names. names may be nil; otherwise it
// must have the same length as types.
func NewTupleDesc(types []common.Type, names []string) *TupleDesc {
	common.Assert(len(types) > 0, "a TupleDesc needs at least one field")
	common.Assert(names == nil || len(names) == len(types), "got %d names for %d types", len(names), len(types))
	items := make([]TDItem, len(types))
	for i, t := range types {
		items[i].Type = t
		if names != nil {
			items[i].Name = names[i]
		}
	}
	return newTupleDescFromItems(items)
}

func newTupleDescFromItems(items []TDItem) *TupleDesc {
	desc := &TupleDesc{items: items, offsets: make([]int, len(items))}
	for i, item := range items {
		desc.offsets[i] = desc.size
		desc.size += item.Type.Size()
	}
	return desc
}

// NumFields returns the number of fields in the schema.
func (td *TupleDesc) NumFields() int {
	return len(td.items)
}

// Size returns the width in bytes of a serialized row.
func (td *TupleDesc) Size() int {
	return td.size
}

// FieldName returns the (possibly empty) name of field i.
func (td *TupleDesc) FieldName(i int) (string, error) {
	if i < 0 || i >= len(td.items) {
		return "", common.NewError(common.NoSuchObjectError, "field index %d out of range [0, %d)", i, len(td.items))
	}
	return td.items[i].Name, nil
}

// FieldType returns the type of field i.
func (td *TupleDesc) FieldType(i int) (common.Type, error) {
	if i < 0 || i >= len(td.items) {
		return common.DefaultType, common.NewError(common.NoSuchObjectError, "field index %d out of range [0, %d)", i, len(td.items))
	}
	return td.items[i].Type, nil
}

// IndexOf returns the index of the first field called name.
func (td *TupleDesc) IndexOf(name string) (int, error) {
	if name != "" {
		for i, item := range td.items {
			if item.Name == name {
				return i, nil
			}
		}
	}
	return -1, common.NewError(common.NoSuchObjectError, "no field named %q", name)
}

// Items returns a copy of the schema entries.
func (td *TupleDesc) Items() []TDItem {
	return append([]TDItem(nil), td.items...)
}

// Types returns the field types in order.
func (td *TupleDesc) Types() []common.Type {
	types := make([]common.Type, len(td.items))
	for i, item := range td.items {
		types[i] = item.Type
	}
	return types
}

// Equals reports whether the two descriptors have the same field types in the same positions.
// Names are ignored.
func (td *TupleDesc) Equals(other *TupleDesc) bool {
	if other == nil || len(td.items) != len(other.items) {
		return false
	}
	for i := range td.items {
		if td.items[i].Type != other.items[i].Type {
			return false
		}
	}
	return true
}

// Merge returns a new TupleDesc with the fields of td followed by those of other.
func (td *TupleDesc) Merge(other *TupleDesc) *TupleDesc {
	items := make([]TDItem, 0, len(td.items)+len(other.items))
	items = append(items, td.items...)
	items = append(items, other.items...)
	return newTupleDescFromItems(items)
}

// Qualify returns a copy of td whose field names are prefixed with "alias.".
func (td *TupleDesc) Qualify(alias string) *TupleDesc {
	items := make([]TDItem, len(td.items))
	for i, item := range td.items {
		items[i] = TDItem{Type: item.Type, Name: alias + "." + item.Name}
	}
	return newTupleDescFromItems(items)
}

func (td *TupleDesc) String() string {
	parts := make([]string, len(td.items))
	for i, item := range td.items {
		parts[i] = fmt.Sprintf("%s(%s)", item.Type, item.Name)
	}
	return strings.Join(parts, ", ")
}

// Tuple is a row: one Value per field of its TupleDesc, plus the RecordID of the slot it was read
// from or stored into. The RecordID is nil for tuples that have not been persisted.
type Tuple struct {
	desc   *TupleDesc
	fields []common.Value
	rid    common.RecordID
}

// NewTuple creates an empty tuple for desc. Its fields must be filled with SetField.
func NewTuple(desc *TupleDesc) *Tuple {
	return &Tuple{desc: desc, fields: make([]common.Value, desc.NumFields())}
}

// FromValues creates a tuple holding vals, checking them against desc.
func FromValues(desc *TupleDesc, vals ...common.Value) (*Tuple, error) {
	if len(vals) != desc.NumFields() {
		return nil, common.NewError(common.SchemaMismatchError, "got %d values for %d fields", len(vals), desc.NumFields())
	}
	t := NewTuple(desc)
	for i, v := range vals {
		if err := t.SetField(i, v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tuple) TupleDesc() *TupleDesc {
	return t.desc
}

// SetTupleDesc rebinds the tuple to a compatible descriptor (e.g. one with alias-qualified names).
func (t *Tuple) SetTupleDesc(desc *TupleDesc) {
	common.Assert(t.desc.Equals(desc), "cannot rebind tuple from %s to %s", t.desc, desc)
	t.desc = desc
}

// Field returns the value at index i.
func (t *Tuple) Field(i int) (common.Value, error) {
	if i < 0 || i >= len(t.fields) {
		return common.Value{}, common.NewError(common.NoSuchObjectError, "field index %d out of range [0, %d)", i, len(t.fields))
	}
	return t.fields[i], nil
}

// SetField stores v at index i. v must have the type the descriptor declares for that field.
func (t *Tuple) SetField(i int, v common.Value) error {
	ft, err := t.desc.FieldType(i)
	if err != nil {
		return err
	}
	if v.Type() != ft {
		return common.NewError(common.SchemaMismatchError, "field %d is %s, got %s", i, ft, v.Type())
	}
	t.fields[i] = v
	return nil
}

// Fields returns the tuple's values. The returned slice must not be modified.
func (t *Tuple) Fields() []common.Value {
	return t.fields
}

func (t *Tuple) RecordID() common.RecordID {
	return t.rid
}

func (t *Tuple) SetRecordID(rid common.RecordID) {
	t.rid = rid
}

// WriteTo serializes the tuple's fields back to back into data.
func (t *Tuple) WriteTo(data []byte) {
	for i, v := range t.fields {
		common.Assert(!v.IsNil(), "field %d of tuple is unset", i)
		v.WriteTo(data[t.desc.offsets[i]:])
	}
}

// ParseTuple reads one row laid out by desc from the front of data.
func ParseTuple(desc *TupleDesc, data []byte) (*Tuple, error) {
	t := NewTuple(desc)
	for i, item := range desc.items {
		v, err := common.ParseValue(item.Type, data[desc.offsets[i]:])
		if err != nil {
			return nil, err
		}
		t.fields[i] = v
	}
	return t, nil
}

// Equals compares field values only. RecordIDs and names are ignored.
func (t *Tuple) Equals(other *Tuple) bool {
	if other == nil || !t.desc.Equals(other.desc) {
		return false
	}
	for i := range t.fields {
		if t.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// String renders the fields tab separated.
func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, v := range t.fields {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\t")
}
