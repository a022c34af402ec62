package core

import (
	"bytes"
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(&Cell{})
}

// Kind tags the value variant held by a Cell.
type Kind int

const (
	KindString Kind = iota
	KindSortedSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindSortedSet:
		return "sorted set"
	default:
		return "unknown kind"
	}
}

// Cell is the value record associated with a key: a tagged string/sorted-set
// variant plus an optional absolute expiry instant. A zero expireAt means
// the key is persistent ("never" expires), matching spec.md §4.2.
type Cell struct {
	kind      Kind
	str       string
	sortedSet *SortedSet
	expireAt  time.Time
}

// NewStringCell constructs a string-variant cell. A zero expireAt means no
// expiry.
func NewStringCell(value string, expireAt time.Time) *Cell {
	return &Cell{kind: KindString, str: value, expireAt: expireAt}
}

// NewSortedSetCell constructs a fresh, empty sorted-set-variant cell with no
// expiry, as ZADD creates it (spec.md §4.3).
func NewSortedSetCell() *Cell {
	return &Cell{kind: KindSortedSet, sortedSet: NewSortedSet()}
}

func (c *Cell) Kind() Kind { return c.kind }

// Str returns the string value, or ErrWrongType if this cell is a sorted set.
func (c *Cell) Str() (string, error) {
	if c.kind != KindString {
		return "", ErrWrongType
	}
	return c.str, nil
}

// SortedSet returns the sorted set, or ErrWrongType if this cell is a string.
func (c *Cell) SortedSet() (*SortedSet, error) {
	if c.kind != KindSortedSet {
		return nil, ErrWrongType
	}
	return c.sortedSet, nil
}

// ExpireAt returns the absolute expiry instant; the zero Time means "never".
func (c *Cell) ExpireAt() time.Time { return c.expireAt }

func (c *Cell) HasExpiry() bool { return !c.expireAt.IsZero() }

// IsLive reports whether the cell has not expired as of now.
func (c *Cell) IsLive(now time.Time) bool {
	return c.expireAt.IsZero() || c.expireAt.After(now)
}

// withExpiry returns a copy of c carrying a new expiry. Used by EXPIRE,
// which must not mutate a Cell that another goroutine may be serializing
// into a snapshot.
func (c *Cell) withExpiry(expireAt time.Time) *Cell {
	clone := *c
	clone.expireAt = expireAt
	return &clone
}

// clone returns a deep, independent copy: mutations to the original (or its
// sorted set) are never visible through the clone. Required by
// Dataset.Snapshot, which must hand the background snapshot worker a copy
// that does not alias the live map (spec.md §9).
func (c *Cell) clone() *Cell {
	clone := &Cell{kind: c.kind, str: c.str, expireAt: c.expireAt}
	if c.kind == KindSortedSet {
		clone.sortedSet = c.sortedSet.clone()
	}
	return clone
}

// gobCell is the exported mirror of Cell used only for gob
// marshaling/unmarshaling, since Cell's fields are unexported. Mirrors the
// teacher's gobExportItem / gobExportHashEngine pattern in
// core/storagehash.go and core/hashengine.go.
type gobCell struct {
	Kind     Kind
	Str      string
	Members  []string
	Scores   []float64
	ExpireAt time.Time
}

func (c *Cell) GobEncode() ([]byte, error) {
	g := gobCell{Kind: c.kind, Str: c.str, ExpireAt: c.expireAt}
	if c.kind == KindSortedSet {
		g.Members, g.Scores = c.sortedSet.snapshot()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Cell) GobDecode(data []byte) error {
	var g gobCell
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}

	c.kind = g.Kind
	c.str = g.Str
	c.expireAt = g.ExpireAt

	if g.Kind == KindSortedSet {
		c.sortedSet = NewSortedSet()
		pairs := make([]ScoreMember, len(g.Members))
		for i, m := range g.Members {
			pairs[i] = ScoreMember{Score: g.Scores[i], Member: m}
		}
		c.sortedSet.Update(pairs, false)
	}

	return nil
}
