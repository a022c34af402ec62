package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellStringGobRoundTrip(t *testing.T) {
	expireAt := time.Now().Add(time.Hour).Round(0)
	original := NewStringCell("hello", expireAt)

	data, err := original.GobEncode()
	require.NoError(t, err)

	restored := &Cell{}
	require.NoError(t, restored.GobDecode(data))

	assert.Equal(t, KindString, restored.Kind())
	v, err := restored.Str()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.True(t, restored.ExpireAt().Equal(expireAt))
}

func TestCellStringGobRoundTripNoExpiry(t *testing.T) {
	original := NewStringCell("world", time.Time{})

	data, err := original.GobEncode()
	require.NoError(t, err)

	restored := &Cell{}
	require.NoError(t, restored.GobDecode(data))

	assert.False(t, restored.HasExpiry())
	assert.True(t, restored.IsLive(time.Now()))
}

func TestCellSortedSetGobRoundTrip(t *testing.T) {
	original := NewSortedSetCell()
	ss, err := original.SortedSet()
	require.NoError(t, err)
	ss.Update([]ScoreMember{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}}, false)

	data, err := original.GobEncode()
	require.NoError(t, err)

	restored := &Cell{}
	require.NoError(t, restored.GobDecode(data))

	assert.Equal(t, KindSortedSet, restored.Kind())
	restoredSS, err := restored.SortedSet()
	require.NoError(t, err)
	assert.Equal(t, 2, restoredSS.Len())

	rank, ok := restoredSS.Rank("b")
	require.True(t, ok)
	assert.Equal(t, 1, rank)
}

func TestCellWrongTypeAccessors(t *testing.T) {
	strCell := NewStringCell("x", time.Time{})
	_, err := strCell.SortedSet()
	assert.ErrorIs(t, err, ErrWrongType)

	setCell := NewSortedSetCell()
	_, err = setCell.Str()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestCellWithExpiryDoesNotMutateOriginal(t *testing.T) {
	original := NewStringCell("x", time.Time{})
	newExpiry := time.Now().Add(time.Minute)
	updated := original.withExpiry(newExpiry)

	assert.False(t, original.HasExpiry())
	assert.True(t, updated.HasExpiry())
}

func TestCellCloneIsIndependent(t *testing.T) {
	original := NewSortedSetCell()
	ss, _ := original.SortedSet()
	ss.Update([]ScoreMember{{Score: 1, Member: "a"}}, false)

	clone := original.clone()
	ss.Update([]ScoreMember{{Score: 2, Member: "b"}}, false)

	cloneSS, _ := clone.SortedSet()
	assert.Equal(t, 1, cloneSS.Len())
}
