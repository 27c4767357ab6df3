// Package idgen numbers scheduled events and monitor sessions.
//
// Numbers start at 1 so that the zero ID can mean "unassigned".
package idgen

import "sync/atomic"

// ID names one scheduled event. IDs from the same Sequence are unique and
// increase in the order they were handed out.
type ID uint64

// Generator hands out IDs.
type Generator interface {
	Generate() ID
}

// Sequence is a Generator that counts up from the last ID it issued. It is
// safe for concurrent use.
type Sequence struct {
	last atomic.Uint64
}

// New returns a Sequence whose first ID is 1.
func New() Generator {
	return &Sequence{}
}

// ResumeAfter returns a Sequence whose first ID follows last. It lets a
// restored queue keep numbering where a saved one stopped.
func ResumeAfter(last ID) *Sequence {
	s := &Sequence{}
	s.last.Store(uint64(last))

	return s
}

// Generate issues the next ID.
func (s *Sequence) Generate() ID {
	return ID(s.last.Add(1))
}

// Last returns the most recently issued ID, or zero before the first.
func (s *Sequence) Last() ID {
	return ID(s.last.Load())
}
