package common

import (
	"fmt"
	"sort"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoDBError_MatchesOnCode(t *testing.T) {
	err := NewError(DeadlockError, "txn %d would wait on %d", 3, 4)
	assert.Equal(t, "err: DeadlockError; msg: txn 3 would wait on 4", err.Error())
	assert.ErrorIs(t, err, ErrDeadlock)
	assert.NotErrorIs(t, err, ErrPageFull)

	wrapped := pkgerrors.Wrap(fmt.Errorf("insert: %w", err), "worker 2")
	assert.True(t, IsDeadlock(wrapped))
	code, ok := ErrorCode(wrapped)
	require.True(t, ok)
	assert.Equal(t, DeadlockError, code)

	_, ok = ErrorCode(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.False(t, IsDeadlock(nil))
	assert.Equal(t, "unknown", GoDBErrorCode(99).String())
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" INT ")
	require.NoError(t, err)
	assert.Equal(t, IntType, typ)
	typ, err = ParseType("string")
	require.NoError(t, err)
	assert.Equal(t, StringType, typ)

	_, err = ParseType("float")
	assert.ErrorIs(t, err, ErrNoSuchObject)
	assert.Equal(t, 132, StringType.Size())
	assert.Equal(t, 4, IntType.Size())
}

func TestValue_CompareAndSatisfies(t *testing.T) {
	one, two := NewIntValue(1), NewIntValue(2)
	assert.Equal(t, -1, one.Compare(two))
	assert.Equal(t, 1, two.Compare(one))
	assert.Equal(t, 0, one.Compare(NewIntValue(1)))
	assert.True(t, one.Equals(NewIntValue(1)))
	assert.False(t, one.Equals(NewStringValue("1")))

	cases := []struct {
		op   CompareOp
		want bool
	}{
		{Equals, false},
		{NotEquals, true},
		{LessThan, true},
		{LessThanOrEqual, true},
		{GreaterThan, false},
		{GreaterThanOrEqual, false},
		{Like, false},
	}
	for _, c := range cases {
		t.Run(c.op.String(), func(t *testing.T) {
			assert.Equal(t, c.want, one.Satisfies(c.op, two))
		})
	}

	hello := NewStringValue("hello world")
	assert.True(t, hello.Satisfies(Like, NewStringValue("lo w")))
	assert.False(t, hello.Satisfies(Like, NewStringValue("bye")))
	assert.True(t, hello.Satisfies(GreaterThan, NewStringValue("hello")))

	assert.Panics(t, func() { one.Compare(hello) })
	assert.Panics(t, func() { one.StringValue() })
}

func TestValue_WireFormat(t *testing.T) {
	buf := make([]byte, StringType.Size())
	NewStringValue("abc").WriteTo(buf)
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c', 0}, buf[:8])

	v, err := ParseValue(StringType, buf)
	require.NoError(t, err)
	assert.Equal(t, NewStringValue("abc"), v)

	_, err = ParseValue(IntType, []byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptPage)
	_, err = ParseValue(DefaultType, buf)
	assert.ErrorIs(t, err, ErrCorruptPage)
	buf[3] = 200
	_, err = ParseValue(StringType, buf)
	assert.ErrorIs(t, err, ErrCorruptPage)
}

func TestPageID_Ordering(t *testing.T) {
	ids := []PageID{{2, 0}, {1, 5}, {1, 0}, {2, 3}}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	assert.Equal(t, []PageID{{1, 0}, {1, 5}, {2, 0}, {2, 3}}, ids)

	buf := make([]byte, PageIDSize)
	ids[3].WriteTo(buf)
	var back PageID
	back.LoadFrom(buf)
	assert.Equal(t, ids[3], back)
	assert.True(t, PageID{}.IsNil())
	assert.True(t, RecordID{}.IsNil())
}

func TestPageSizeOverride(t *testing.T) {
	t.Cleanup(ResetPageSize)
	SetPageSize(256)
	assert.Equal(t, 256, PageSize())
	ResetPageSize()
	assert.Equal(t, DefaultPageSize, PageSize())
	assert.Equal(t, 3, CeilDiv(9, 4))
	assert.Panics(t, func() { SetPageSize(0) })
}
