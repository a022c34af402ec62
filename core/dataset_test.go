package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger captures every command a Dataset journals, letting tests
// assert lazy expiry synthesizes a DEL the same way a real durability.Store
// would log it.
type recordingLogger struct {
	calls [][2]interface{}
}

func (l *recordingLogger) LogCommand(cmd string, args []string) error {
	l.calls = append(l.calls, [2]interface{}{cmd, args})
	return nil
}

func TestDatasetGetSetRoundTrip(t *testing.T) {
	d := NewDataset("test")

	_, err := d.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok := d.Set("k", "v", SetOptions{})
	assert.True(t, ok)

	v, err := d.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestDatasetSetNX(t *testing.T) {
	d := NewDataset("test")
	d.Set("k", "v1", SetOptions{})

	ok := d.Set("k", "v2", SetOptions{NX: true})
	assert.False(t, ok)

	v, _ := d.Get("k")
	assert.Equal(t, "v1", v)
}

func TestDatasetSetXX(t *testing.T) {
	d := NewDataset("test")

	ok := d.Set("k", "v1", SetOptions{XX: true})
	assert.False(t, ok)

	d.Set("k", "v1", SetOptions{})
	ok = d.Set("k", "v2", SetOptions{XX: true})
	assert.True(t, ok)

	v, _ := d.Get("k")
	assert.Equal(t, "v2", v)
}

func TestDatasetSetKeepTTL(t *testing.T) {
	d := NewDataset("test")
	expireAt := time.Now().Add(time.Hour)
	d.Set("k", "v1", SetOptions{HasExpire: true, ExpireAt: expireAt})

	d.Set("k", "v2", SetOptions{KeepTTL: true})

	ttl := d.TTL("k")
	assert.Greater(t, ttl, 0)
}

func TestDatasetSetWithoutKeepTTLClearsExpiry(t *testing.T) {
	d := NewDataset("test")
	d.Set("k", "v1", SetOptions{HasExpire: true, ExpireAt: time.Now().Add(time.Hour)})
	d.Set("k", "v2", SetOptions{})

	assert.Equal(t, -1, d.TTL("k"))
}

func TestDatasetExpireAndTTL(t *testing.T) {
	d := NewDataset("test")

	assert.False(t, d.Expire("missing", 10))

	d.Set("k", "v", SetOptions{})
	assert.Equal(t, -1, d.TTL("k"))

	ok := d.Expire("k", 100)
	assert.True(t, ok)

	ttl := d.TTL("k")
	assert.True(t, ttl > 90 && ttl <= 100)
}

func TestDatasetTTLNotLive(t *testing.T) {
	d := NewDataset("test")
	assert.Equal(t, -2, d.TTL("missing"))
}

func TestDatasetLazyExpiryEvictsAndLogs(t *testing.T) {
	d := NewDataset("test")
	logger := &recordingLogger{}
	d.SetLogger(logger)

	d.Set("k", "v", SetOptions{HasExpire: true, ExpireAt: time.Now().Add(-time.Second)})
	logger.calls = nil // clear the SET log call, only care about the DEL below

	_, err := d.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, logger.calls, 1)
	assert.Equal(t, "DEL", logger.calls[0][0])
	assert.Equal(t, []string{"k"}, logger.calls[0][1])
}

func TestDatasetDel(t *testing.T) {
	d := NewDataset("test")
	d.Set("a", "1", SetOptions{})
	d.Set("b", "2", SetOptions{})

	n := d.Del([]string{"a", "b", "missing"})
	assert.Equal(t, 2, n)

	_, err := d.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatasetGetWrongType(t *testing.T) {
	d := NewDataset("test")
	d.ZAdd("k", []ScoreMember{{Score: 1, Member: "m"}}, ZAddOptions{})

	_, err := d.Get("k")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDatasetZAddCreatesAndCounts(t *testing.T) {
	d := NewDataset("test")

	result, err := d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}}, ZAddOptions{})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, 2, result.Count)
}

func TestDatasetZAddNX(t *testing.T) {
	d := NewDataset("test")
	d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}}, ZAddOptions{})

	result, err := d.ZAdd("k", []ScoreMember{{Score: 2, Member: "b"}}, ZAddOptions{NX: true})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
}

func TestDatasetZAddXXOnMissingKey(t *testing.T) {
	d := NewDataset("test")

	result, err := d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}}, ZAddOptions{XX: true})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
}

func TestDatasetZAddCHCountsOnlyChanged(t *testing.T) {
	d := NewDataset("test")
	d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}}, ZAddOptions{})

	result, err := d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}, {Score: 5, Member: "b"}}, ZAddOptions{CH: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
}

func TestDatasetZAddIncr(t *testing.T) {
	d := NewDataset("test")
	d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}}, ZAddOptions{})

	result, err := d.ZAdd("k", []ScoreMember{{Score: 4, Member: "a"}}, ZAddOptions{INCR: true})
	require.NoError(t, err)
	assert.Equal(t, float64(5), result.Score)
}

func TestDatasetZAddWrongType(t *testing.T) {
	d := NewDataset("test")
	d.Set("k", "v", SetOptions{})

	_, err := d.ZAdd("k", []ScoreMember{{Score: 1, Member: "a"}}, ZAddOptions{})
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDatasetZRankMissing(t *testing.T) {
	d := NewDataset("test")

	rank, found, err := d.ZRank("missing", "a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, rank)
}

func TestDatasetZRangeNotLiveReturnsEmptyNotNilError(t *testing.T) {
	d := NewDataset("test")

	members, err := d.ZRange("missing", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.NotNil(t, members)
}

func TestDatasetZRangeWrongType(t *testing.T) {
	d := NewDataset("test")
	d.Set("k", "v", SetOptions{})

	_, err := d.ZRange("k", 0, -1)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestDatasetSnapshotLoadSnapshotRoundTrip(t *testing.T) {
	d := NewDataset("test")
	d.Set("a", "1", SetOptions{})
	d.ZAdd("z", []ScoreMember{{Score: 1, Member: "m"}}, ZAddOptions{})

	cells := d.Snapshot()
	require.Len(t, cells, 2)

	restored := NewDataset("test2")
	restored.LoadSnapshot(cells)

	v, err := restored.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	rank, found, err := restored.ZRank("z", "m")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, rank)
}

func TestDatasetSnapshotDoesNotAliasLiveMap(t *testing.T) {
	d := NewDataset("test")
	d.Set("a", "1", SetOptions{})

	cells := d.Snapshot()
	d.Set("a", "2", SetOptions{})

	v, err := cells["a"].Str()
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
