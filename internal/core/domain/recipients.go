package domain

import "strings"

// RecipientSet is a set of email addresses. Addresses compare
// case-insensitively; the first spelling seen is kept.
type RecipientSet struct {
	index map[string]struct{}
	addrs []string
}

// NewRecipientSet builds a set from the given addresses.
func NewRecipientSet(addrs ...string) RecipientSet {
	var s RecipientSet
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts addr unless it is blank or already present. It reports whether
// the set grew.
func (s *RecipientSet) Add(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	key := strings.ToLower(addr)
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.addrs = append(s.addrs, addr)
	return true
}

// Contains reports whether addr is in the set.
func (s RecipientSet) Contains(addr string) bool {
	_, ok := s.index[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

// Len returns the number of addresses.
func (s RecipientSet) Len() int {
	return len(s.addrs)
}

// IsEmpty reports whether there is nobody to notify.
func (s RecipientSet) IsEmpty() bool {
	return len(s.addrs) == 0
}

// Addresses returns a copy of the addresses in insertion order.
func (s RecipientSet) Addresses() []string {
	return append([]string(nil), s.addrs...)
}

// String joins the addresses with commas, the form used in a To header.
func (s RecipientSet) String() string {
	return strings.Join(s.addrs, ",")
}
