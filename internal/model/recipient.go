package model

import (
	"sort"
)

// ResolutionContext carries what a domain event knows about who caused
// it and what it refers to.
type ResolutionContext struct {
	EventType          NotificationType
	ContractID         *int64
	ActorUserID        *int64
	ExplicitRecipients []int64
}

// UserSet is an unordered set of user ids.
type UserSet map[int64]struct{}

func NewUserSet(ids ...int64) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s UserSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s UserSet) Remove(id int64) {
	delete(s, id)
}

func (s UserSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids in ascending order.
func (s UserSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Int64 returns a pointer to v, for optional context fields.
func Int64(v int64) *int64 {
	return &v
}
