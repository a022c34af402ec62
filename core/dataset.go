package core

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/radishkv/radishkv/internal/logging"
)

// bucketsCount shards a Dataset's keyspace the way the teacher's
// core/storagehash.go shards the engine map. A single dataset is processed
// by one session at a time (spec.md §1 non-goals), so the sharding here
// isn't chasing request-path throughput. Single-key operations (including
// lazy expiry) lock only their key's bucket; Dataset.Snapshot and
// LoadSnapshot lock every bucket for the whole copy, so they still block
// single-key operations while they run.
const bucketsCount = 1024

func bucketOf(key string) int {
	return int(xxhash.ChecksumString64(key) % bucketsCount)
}

// Dataset is the keyed store for one named dataset: a sharded map from
// string key to *Cell, plus the hook that lets lazy expiry journal the DEL
// it synthesizes. Exactly one Dataset instance exists per name for the
// lifetime of the process (see GetOrCreateDataset).
type Dataset struct {
	name string

	mu   [bucketsCount]sync.Mutex
	data [bucketsCount]map[string]*Cell

	logger CommandLogger
}

// NewDataset constructs an empty, unlogged Dataset. Callers normally obtain
// a Dataset via GetOrCreateDataset rather than calling this directly.
func NewDataset(name string) *Dataset {
	d := &Dataset{name: name}
	for i := range d.data {
		d.data[i] = make(map[string]*Cell)
	}
	return d
}

// Name returns the dataset's identifier.
func (d *Dataset) Name() string { return d.name }

// SetLogger installs the command logger used for every journaled mutation,
// including lazy-expiry DELs. durability.Open calls it on every SELECT of
// the dataset, after any recovery replay, replacing the previous logger.
func (d *Dataset) SetLogger(l CommandLogger) { d.logger = l }

func (d *Dataset) logCommand(cmd string, args []string) {
	if d.logger == nil {
		return
	}
	if err := d.logger.LogCommand(cmd, args); err != nil {
		logging.Errorf("dataset %q: failed to log %s: %s", d.name, cmd, err)
	}
}

// liveLocked returns the cell at key if live, evicting and journaling a DEL
// if it has expired. Caller must hold d.mu[bucketOf(key)].
func (d *Dataset) liveLocked(b int, key string, now time.Time) (*Cell, bool) {
	cell, ok := d.data[b][key]
	if !ok {
		return nil, false
	}
	if cell.IsLive(now) {
		return cell, true
	}

	delete(d.data[b], key)
	d.logCommand("DEL", []string{key})
	return nil, false
}

func (d *Dataset) live(key string, now time.Time) (*Cell, bool) {
	b := bucketOf(key)
	d.mu[b].Lock()
	defer d.mu[b].Unlock()
	return d.liveLocked(b, key, now)
}

// Get returns the string value of key. ErrNotFound if absent/expired,
// ErrWrongType if the live cell is a sorted set.
func (d *Dataset) Get(key string) (string, error) {
	cell, live := d.live(key, time.Now())
	if !live {
		return "", ErrNotFound
	}
	return cell.Str()
}

// SetOptions carries SET's optional flags (spec.md §4.3).
type SetOptions struct {
	HasExpire bool
	ExpireAt  time.Time
	NX        bool
	XX        bool
	KeepTTL   bool
}

// Set implements SET. Returns false (no mutation) if an NX/XX guard fails.
func (d *Dataset) Set(key, value string, opts SetOptions) bool {
	now := time.Now()
	b := bucketOf(key)
	d.mu[b].Lock()
	defer d.mu[b].Unlock()

	cell, isLive := d.liveLocked(b, key, now)

	if opts.NX && isLive {
		return false
	}
	if opts.XX && !isLive {
		return false
	}

	var expireAt time.Time
	switch {
	case opts.KeepTTL && isLive:
		expireAt = cell.ExpireAt()
	case opts.HasExpire:
		expireAt = opts.ExpireAt
	}

	d.data[b][key] = NewStringCell(value, expireAt)
	d.logCommand("SET", setLogArgs(key, value, expireAt))
	return true
}

// Expire implements EXPIRE: computes an absolute expiry seconds from now and
// applies it. Returns false if key isn't live.
func (d *Dataset) Expire(key string, seconds int) bool {
	return d.expireAt(key, time.Now().Add(time.Duration(seconds)*time.Second))
}

// ExpireAt sets key's absolute expiry directly, bypassing the
// relative-to-now computation Expire does. Used by durability replay to
// reapply a logged EXPIRE against the instant the original command computed
// rather than recomputing a fresh one from the replay-time clock — the same
// "reconstruct the original expiry instant" concern setLogArgs/-PXAT already
// solves for SET (spec.md §4.5/§9, §8's "Log replay idempotence" property).
// Returns false if key isn't live.
func (d *Dataset) ExpireAt(key string, expireAt time.Time) bool {
	return d.expireAt(key, expireAt)
}

func (d *Dataset) expireAt(key string, expireAt time.Time) bool {
	now := time.Now()
	b := bucketOf(key)
	d.mu[b].Lock()
	defer d.mu[b].Unlock()

	cell, isLive := d.liveLocked(b, key, now)
	if !isLive {
		return false
	}

	d.data[b][key] = cell.withExpiry(expireAt)
	d.logCommand("EXPIRE", expireLogArgs(key, expireAt))
	return true
}

// TTL implements TTL: remaining seconds (floor) if live with expiry, -1 if
// live without expiry, -2 if not live.
func (d *Dataset) TTL(key string) int {
	cell, isLive := d.live(key, time.Now())
	if !isLive {
		return -2
	}
	if !cell.HasExpiry() {
		return -1
	}
	return int(math.Floor(cell.ExpireAt().Sub(time.Now()).Seconds()))
}

// Del implements DEL: removes each listed key if present, ignoring absent
// ones, and returns the count actually removed.
func (d *Dataset) Del(keys []string) int {
	now := time.Now()
	count := 0
	for _, key := range keys {
		b := bucketOf(key)
		d.mu[b].Lock()
		if _, isLive := d.liveLocked(b, key, now); isLive {
			delete(d.data[b], key)
			count++
			d.logCommand("DEL", []string{key})
		}
		d.mu[b].Unlock()
	}
	return count
}

// ZAddOptions carries ZADD's optional flags (spec.md §4.3).
type ZAddOptions struct {
	NX, XX, CH, INCR bool
}

// ZAddResult distinguishes ZADD's three possible reply shapes: a no-op
// ((nil), when an NX/XX guard fails), an incremented score (INCR mode), or a
// count of new/changed members.
type ZAddResult struct {
	NoOp  bool
	Score float64
	Count int
}

// ZAdd implements ZADD.
func (d *Dataset) ZAdd(key string, pairs []ScoreMember, opts ZAddOptions) (ZAddResult, error) {
	now := time.Now()
	b := bucketOf(key)
	d.mu[b].Lock()
	defer d.mu[b].Unlock()

	cell, isLive := d.liveLocked(b, key, now)
	if isLive && cell.Kind() != KindSortedSet {
		return ZAddResult{}, ErrWrongType
	}

	if opts.NX && isLive {
		return ZAddResult{NoOp: true}, nil
	}
	if opts.XX && !isLive {
		return ZAddResult{NoOp: true}, nil
	}

	if !isLive {
		cell = NewSortedSetCell()
		d.data[b][key] = cell
		count, _ := cell.SortedSet()
		n := count.Update(pairs, false)
		d.logCommand("ZADD", zaddLogArgs(key, pairs, ZAddOptions{}))
		return ZAddResult{Count: n}, nil
	}

	ss, _ := cell.SortedSet()
	if opts.INCR {
		score := ss.IncrUpdate(pairs[0])
		d.logCommand("ZADD", zaddLogArgs(key, pairs, opts))
		return ZAddResult{Score: score}, nil
	}

	n := ss.Update(pairs, opts.CH)
	d.logCommand("ZADD", zaddLogArgs(key, pairs, opts))
	return ZAddResult{Count: n}, nil
}

// ZRank implements ZRANK: (0, false, nil) if key is not live.
func (d *Dataset) ZRank(key, member string) (rank int, found bool, err error) {
	cell, isLive := d.live(key, time.Now())
	if !isLive {
		return 0, false, nil
	}
	ss, err := cell.SortedSet()
	if err != nil {
		return 0, false, err
	}
	rank, found = ss.Rank(member)
	return rank, found, nil
}

// ZRange implements ZRANGE: an empty, non-nil slice if key is not live
// (spec.md §4.3: "empty list if k is not live"), so callers can tell "no
// data" apart from a wrong-variant error without inspecting liveness again.
func (d *Dataset) ZRange(key string, start, stop int) ([]ScoreMember, error) {
	cell, isLive := d.live(key, time.Now())
	if !isLive {
		return []ScoreMember{}, nil
	}
	ss, err := cell.SortedSet()
	if err != nil {
		return nil, err
	}
	return ss.Range(start, stop), nil
}

// Snapshot returns an independent deep copy of the key→cell map, taken
// under every bucket's lock. The caller (durability layer) hands this copy
// to a background worker; mutations to the live dataset afterward are never
// visible through it (spec.md §5/§9: "the worker does not alias the live
// map").
func (d *Dataset) Snapshot() map[string]*Cell {
	for b := range d.mu {
		d.mu[b].Lock()
	}
	defer func() {
		for b := range d.mu {
			d.mu[b].Unlock()
		}
	}()

	out := make(map[string]*Cell)
	for b := range d.data {
		for k, v := range d.data[b] {
			out[k] = v.clone()
		}
	}
	return out
}

// LoadSnapshot replaces the dataset's contents with cells (used by
// recovery, step 1: deserializing the .rdb into the dataset map).
func (d *Dataset) LoadSnapshot(cells map[string]*Cell) {
	for b := range d.mu {
		d.mu[b].Lock()
	}
	defer func() {
		for b := range d.mu {
			d.mu[b].Unlock()
		}
	}()

	for b := range d.data {
		d.data[b] = make(map[string]*Cell)
	}
	for k, v := range cells {
		d.data[bucketOf(k)][k] = v
	}
}

func setLogArgs(key, value string, expireAt time.Time) []string {
	if expireAt.IsZero() {
		return []string{key, value}
	}
	return []string{key, value, "-PXAT", strconv.FormatInt(expireAt.UnixMilli(), 10)}
}

// expireLogArgs renders EXPIRE's canonical, replay-only log form: the
// absolute instant the command computed, not the relative seconds argument
// the client sent, so replay doesn't recompute a shifted expiry from the
// recovery-time clock.
func expireLogArgs(key string, expireAt time.Time) []string {
	return []string{key, "-PXAT", strconv.FormatInt(expireAt.UnixMilli(), 10)}
}

func zaddLogArgs(key string, pairs []ScoreMember, opts ZAddOptions) []string {
	args := []string{key}
	if opts.CH {
		args = append(args, "-CH")
	}
	if opts.INCR {
		args = append(args, "-INCR")
	}
	for _, p := range pairs {
		args = append(args, strconv.FormatFloat(p.Score, 'g', -1, 64), p.Member)
	}
	return args
}
