package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HITGYA/Mit-6.830/common"
)

var personDesc = NewTupleDesc(
	[]common.Type{common.IntType, common.StringType},
	[]string{"id", "name"},
)

func person(t *testing.T, id int32, name string) *Tuple {
	tup, err := FromValues(personDesc, common.NewIntValue(id), common.NewStringValue(name))
	require.NoError(t, err)
	return tup
}

func TestTupleDesc_Lookups(t *testing.T) {
	assert.Equal(t, 2, personDesc.NumFields())
	assert.Equal(t, 4+4+common.StringLength, personDesc.Size())

	idx, err := personDesc.IndexOf("name")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, err = personDesc.IndexOf("age")
	assert.ErrorIs(t, err, common.ErrNoSuchObject)

	ft, err := personDesc.FieldType(0)
	require.NoError(t, err)
	assert.Equal(t, common.IntType, ft)
	_, err = personDesc.FieldType(2)
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
	_, err = personDesc.FieldName(-1)
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
}

func TestTupleDesc_EqualsMergeQualify(t *testing.T) {
	renamed := NewTupleDesc([]common.Type{common.IntType, common.StringType}, nil)
	assert.True(t, personDesc.Equals(renamed), "names are ignored")
	assert.False(t, personDesc.Equals(NewTupleDesc([]common.Type{common.StringType, common.IntType}, nil)))
	assert.False(t, personDesc.Equals(nil))

	merged := personDesc.Merge(NewTupleDesc([]common.Type{common.IntType}, []string{"age"}))
	assert.Equal(t, 3, merged.NumFields())
	assert.Equal(t, personDesc.Size()+4, merged.Size())
	name, err := merged.FieldName(2)
	require.NoError(t, err)
	assert.Equal(t, "age", name)

	qualified := personDesc.Qualify("p")
	name, err = qualified.FieldName(1)
	require.NoError(t, err)
	assert.Equal(t, "p.name", name)
	idx, err := qualified.IndexOf("p.id")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	// The original is unchanged.
	name, _ = personDesc.FieldName(1)
	assert.Equal(t, "name", name)
}

func TestTuple_FieldsAndErrors(t *testing.T) {
	tup := person(t, 7, "ada")
	assert.True(t, tup.RecordID().IsNil())
	v, err := tup.Field(1)
	require.NoError(t, err)
	assert.Equal(t, "ada", v.StringValue())

	_, err = tup.Field(2)
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
	assert.ErrorIs(t, tup.SetField(0, common.NewStringValue("x")), common.ErrSchemaMismatch)
	assert.ErrorIs(t, tup.SetField(5, common.NewIntValue(1)), common.ErrNoSuchObject)

	_, err = FromValues(personDesc, common.NewIntValue(1))
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestTuple_SerializeRoundTrip(t *testing.T) {
	tup := person(t, -42, "grace")
	buf := make([]byte, personDesc.Size())
	tup.WriteTo(buf)

	// Int is big-endian two's complement; the string is a big-endian length then zero-padded bytes.
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xD6}, buf[:4])
	assert.Equal(t, []byte{0, 0, 0, 5}, buf[4:8])
	assert.Equal(t, "grace", string(buf[8:13]))
	assert.Equal(t, make([]byte, common.StringLength-5), buf[13:])

	parsed, err := ParseTuple(personDesc, buf)
	require.NoError(t, err)
	assert.True(t, tup.Equals(parsed))
	assert.Equal(t, "-42\tgrace", parsed.String())
}

func TestTuple_LongStringsTruncate(t *testing.T) {
	long := strings.Repeat("x", common.StringLength+10)
	tup := person(t, 1, long)
	buf := make([]byte, personDesc.Size())
	tup.WriteTo(buf)
	parsed, err := ParseTuple(personDesc, buf)
	require.NoError(t, err)
	v, _ := parsed.Field(1)
	assert.Equal(t, long[:common.StringLength], v.StringValue())
}

func TestTuple_EqualsIgnoresRecordID(t *testing.T) {
	a := person(t, 1, "a")
	b := person(t, 1, "a")
	b.SetRecordID(common.RecordID{PageID: common.PageID{Oid: 1}, Slot: 3})
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(person(t, 2, "a")))

	b.SetTupleDesc(personDesc.Qualify("p"))
	assert.True(t, a.Equals(b))
}
