package core

import "sort"

// ScoreMember is a (score, member) pair, the unit ZADD/ZRANGE operate on.
type ScoreMember struct {
	Score  float64
	Member string
}

// SortedSet is an ordered sequence of unique members together with a
// member→score map, ordered ascending by (score, member) — spec.md §3/§4.1.
// Re-scoring a member repositions it: we remove-then-reinsert on every
// assignment rather than mutate a member's position in place (spec.md §9,
// "Sorted-set comparator with mutable scores").
type SortedSet struct {
	scoreOf map[string]float64
	order   []string // members, ascending by (score, member)
}

// NewSortedSet constructs an empty sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{scoreOf: make(map[string]float64)}
}

func less(scoreA float64, memberA string, scoreB float64, memberB string) bool {
	if scoreA != scoreB {
		return scoreA < scoreB
	}
	return memberA < memberB
}

// insertionIndex returns the position at which (score, member) belongs in
// order: the first index whose existing element is not less than it. When
// member is already present at that score, this is also its own position —
// used both to insert a new member and to locate an existing one for removal.
func (s *SortedSet) insertionIndex(score float64, member string) int {
	return sort.Search(len(s.order), func(i int) bool {
		m := s.order[i]
		return !less(s.scoreOf[m], m, score, member)
	})
}

func (s *SortedSet) removeFromOrder(score float64, member string) {
	idx := s.insertionIndex(score, member)
	s.order = append(s.order[:idx], s.order[idx+1:]...)
}

func (s *SortedSet) insertIntoOrder(score float64, member string) {
	idx := s.insertionIndex(score, member)
	s.order = append(s.order, "")
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = member
}

// Update (re)assigns member→score for each pair, repositioning existing
// members as needed. If changed is false, it returns the count of pairs
// whose member was newly added ("new" count); if true, the count of pairs
// whose assignment changed a pre-existing score ("changed" count).
func (s *SortedSet) Update(pairs []ScoreMember, changed bool) int {
	count := 0
	for _, p := range pairs {
		oldScore, existed := s.scoreOf[p.Member]
		switch {
		case existed && changed:
			if oldScore != p.Score {
				count++
			}
		case !existed && !changed:
			count++
		}

		if existed {
			s.removeFromOrder(oldScore, p.Member)
		}
		s.scoreOf[p.Member] = p.Score
		s.insertIntoOrder(p.Score, p.Member)
	}
	return count
}

// IncrUpdate increments pair.Member's score by pair.Score (inserting it at
// that score if absent) and returns the resulting score.
func (s *SortedSet) IncrUpdate(pair ScoreMember) float64 {
	newScore := pair.Score
	if oldScore, existed := s.scoreOf[pair.Member]; existed {
		newScore = oldScore + pair.Score
		s.removeFromOrder(oldScore, pair.Member)
	}
	s.scoreOf[pair.Member] = newScore
	s.insertIntoOrder(newScore, pair.Member)
	return newScore
}

// Rank returns member's 0-based position in ascending order, or false if
// member is absent.
func (s *SortedSet) Rank(member string) (rank int, ok bool) {
	score, ok := s.scoreOf[member]
	if !ok {
		return 0, false
	}
	return s.insertionIndex(score, member), true
}

// Range returns the half-open slice [start, stop) of the ordered sequence.
// spec.md §4.1 only commits to slice semantics on non-negative indices
// ("negative indices are not required"); a negative stop is treated as
// "through the end of the sequence" (the common ZRANGE idiom for "give me
// everything from start on"), and a negative start clamps to 0 rather than
// counting back from the end.
func (s *SortedSet) Range(start, stop int) []ScoreMember {
	n := len(s.order)
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop > n {
		stop = n
	}
	if start >= stop {
		return nil
	}

	result := make([]ScoreMember, 0, stop-start)
	for _, m := range s.order[start:stop] {
		result = append(result, ScoreMember{Score: s.scoreOf[m], Member: m})
	}
	return result
}

// Len returns the number of members in the set.
func (s *SortedSet) Len() int { return len(s.order) }

func (s *SortedSet) clone() *SortedSet {
	c := &SortedSet{
		scoreOf: make(map[string]float64, len(s.scoreOf)),
		order:   append([]string(nil), s.order...),
	}
	for k, v := range s.scoreOf {
		c.scoreOf[k] = v
	}
	return c
}

// snapshot returns parallel members/scores slices in ascending order, the
// form Cell.GobEncode persists.
func (s *SortedSet) snapshot() (members []string, scores []float64) {
	members = append([]string(nil), s.order...)
	scores = make([]float64, len(members))
	for i, m := range members {
		scores[i] = s.scoreOf[m]
	}
	return members, scores
}
