package common

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	// DefaultPageSize is the size in bytes of every page on disk and in the buffer pool.
	DefaultPageSize int = 4096
	// IntSize is the on-disk width of an IntType field.
	IntSize int = 4
	// StringLength is the maximum number of payload bytes stored for a StringType field.
	StringLength int = 128
)

var pageSize atomic.Int64

func init() {
	pageSize.Store(int64(DefaultPageSize))
}

// PageSize returns the process-wide page size.
func PageSize() int {
	return int(pageSize.Load())
}

// SetPageSize overrides the page size. It exists for tests that want small pages and must not be
// called while any heap file or buffer pool is open.
func SetPageSize(n int) {
	Assert(n > 0, "page size must be positive, got %d", n)
	pageSize.Store(int64(n))
}

// ResetPageSize restores DefaultPageSize.
func ResetPageSize() {
	pageSize.Store(int64(DefaultPageSize))
}

type Type int8

const (
	// For uninitialized Values
	DefaultType Type = iota
	IntType
	StringType
)

// Size returns the fixed-width storage size of the type in bytes. Strings carry a 4-byte length
// prefix in front of their payload.
func (t Type) Size() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return 4 + StringLength
	default:
		panic("unknown type")
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// ParseType maps a schema type name ("int", "string") to a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int":
		return IntType, nil
	case "string":
		return StringType, nil
	}
	return DefaultType, NewError(NoSuchObjectError, "unknown type %q", name)
}

// Permission is the access mode a transaction requests for a page.
type Permission int8

const (
	ReadOnly Permission = iota
	ReadWrite
)

func (p Permission) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}

// ObjectID is a unique identifier for a table in the database.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// PageID uniquely identifies a page within the database. It is comparable and used directly as
// a cache and lock key.
type PageID struct {
	Oid     ObjectID
	PageNum int32
}

func (p PageID) String() string {
	return fmt.Sprintf("Page(%d, %d)", p.Oid, p.PageNum)
}

// IsNil checks if the PageID is valid.
func (p PageID) IsNil() bool {
	return p.Oid == InvalidObjectID
}

// Less orders PageIDs by table, then page number.
func (p PageID) Less(other PageID) bool {
	if p.Oid != other.Oid {
		return p.Oid < other.Oid
	}
	return p.PageNum < other.PageNum
}

// PageIDSize is the serialized size of a PageID (ObjectID (4) + PageNum (4) = 8)
const PageIDSize = 8

// WriteTo serializes the PageID into the provided buffer.
func (p PageID) WriteTo(data []byte) {
	Assert(len(data) >= PageIDSize, "buffer too small")
	binary.LittleEndian.PutUint32(data, uint32(p.Oid))
	binary.LittleEndian.PutUint32(data[4:], uint32(p.PageNum))
}

// LoadFrom deserializes a PageID from the provided buffer.
func (p *PageID) LoadFrom(data []byte) {
	Assert(len(data) >= PageIDSize, "buffer too small")
	p.Oid = ObjectID(binary.LittleEndian.Uint32(data))
	p.PageNum = int32(binary.LittleEndian.Uint32(data[4:]))
}

// RecordID identifies a specific tuple via its PageID and slot index.
type RecordID struct {
	PageID
	Slot int32
}

// IsNil checks if the RecordID refers to a valid page.
func (r RecordID) IsNil() bool {
	return r.PageID.IsNil()
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%s, %d)", r.PageID.String(), r.Slot)
}

type TransactionID uint64

const InvalidTransactionID TransactionID = 0

type LSN int64

// CompareOp is a comparison between a field and an operand.
type CompareOp int

const (
	Equals CompareOp = iota
	GreaterThan
	LessThan
	LessThanOrEqual
	GreaterThanOrEqual
	Like
	NotEquals
)

func (op CompareOp) String() string {
	switch op {
	case Equals:
		return "="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThanOrEqual:
		return ">="
	case Like:
		return "LIKE"
	case NotEquals:
		return "<>"
	}
	return "?"
}

// Value is a single field of a tuple. Values are immutable and comparable with ==, which makes
// them usable as map keys (e.g. aggregate groups).
type Value struct {
	t        Type
	intValue int32
	strValue string
}

// NewIntValue creates a new IntType Value.
func NewIntValue(v int32) Value {
	return Value{t: IntType, intValue: v}
}

// NewStringValue creates a new StringType Value. Strings longer than StringLength are truncated.
func NewStringValue(v string) Value {
	if len(v) > StringLength {
		v = v[:StringLength]
	}
	return Value{t: StringType, strValue: v}
}

// IsNil returns true if the Value is uninitialized.
func (v Value) IsNil() bool {
	return v.t == DefaultType
}

func (v Value) Type() Type {
	return v.t
}

// IntValue returns the integer held by v. v must be an IntType.
func (v Value) IntValue() int32 {
	Assert(v.t == IntType, "IntValue() called on %s value", v.t)
	return v.intValue
}

// StringValue returns the string held by v. v must be a StringType.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "StringValue() called on %s value", v.t)
	return v.strValue
}

// Compare returns -1, 0 or 1. Both values must have the same type.
func (v Value) Compare(other Value) int {
	Assert(v.t == other.t, "cannot compare %s with %s", v.t, other.t)
	switch v.t {
	case IntType:
		switch {
		case v.intValue < other.intValue:
			return -1
		case v.intValue > other.intValue:
			return 1
		}
		return 0
	case StringType:
		return strings.Compare(v.strValue, other.strValue)
	}
	panic("unknown type")
}

// Equals reports whether v and other have the same type and value.
func (v Value) Equals(other Value) bool {
	return v == other
}

// Satisfies evaluates "v op operand". LIKE on strings is substring containment; on ints it is
// equality.
func (v Value) Satisfies(op CompareOp, operand Value) bool {
	if op == Like {
		if v.t == StringType {
			return strings.Contains(v.strValue, operand.strValue)
		}
		op = Equals
	}
	c := v.Compare(operand)
	switch op {
	case Equals:
		return c == 0
	case NotEquals:
		return c != 0
	case GreaterThan:
		return c > 0
	case GreaterThanOrEqual:
		return c >= 0
	case LessThan:
		return c < 0
	case LessThanOrEqual:
		return c <= 0
	}
	return false
}

// WriteTo serializes the value into data, which must be at least v.Type().Size() bytes. Integers
// are big-endian; strings are a big-endian length followed by the payload, zero padded.
func (v Value) WriteTo(data []byte) {
	Assert(len(data) >= v.t.Size(), "buffer too small for %s value", v.t)
	switch v.t {
	case IntType:
		binary.BigEndian.PutUint32(data, uint32(v.intValue))
	case StringType:
		binary.BigEndian.PutUint32(data, uint32(len(v.strValue)))
		n := copy(data[4:4+StringLength], v.strValue)
		clear(data[4+n : 4+StringLength])
	default:
		panic("cannot serialize uninitialized value")
	}
}

// ParseValue reads a value of type t from the front of data.
func ParseValue(t Type, data []byte) (Value, error) {
	if t != IntType && t != StringType {
		return Value{}, NewError(CorruptPageError, "unknown field type %d", t)
	}
	if len(data) < t.Size() {
		return Value{}, NewError(CorruptPageError, "need %d bytes for %s field, have %d", t.Size(), t, len(data))
	}
	switch t {
	case IntType:
		return NewIntValue(int32(binary.BigEndian.Uint32(data))), nil
	case StringType:
		n := int(binary.BigEndian.Uint32(data))
		if n > StringLength {
			return Value{}, NewError(CorruptPageError, "string length %d exceeds %d", n, StringLength)
		}
		return NewStringValue(string(data[4 : 4+n])), nil
	}
	panic("unreachable")
}

func (v Value) String() string {
	switch v.t {
	case IntType:
		return strconv.Itoa(int(v.intValue))
	case StringType:
		return v.strValue
	}
	return "<nil>"
}
