// Package chord implements the local ring state and maintenance logic
// spec.md §4.4 describes: successor/predecessor tracking, a 160-entry
// finger table, and the bootstrap/stabilize/fixFingers/checkPredecessor/
// notify algorithms built on top of internal/peerproxy.
package chord

import (
	"sync"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/logger"
)

// entry is a single routing slot: a successor-list position, the
// predecessor, or one finger-table row, grounded on
// internal/routingtable/routingtable.go's `routingEntry` per-slot mutex
// pattern.
type entry struct {
	mu  sync.RWMutex
	ref domain.NodeRef // zero value (IsZero()==true) means "unset"
}

func (e *entry) get() (domain.NodeRef, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ref, !e.ref.IsZero()
}

func (e *entry) set(ref domain.NodeRef) {
	e.mu.Lock()
	e.ref = ref
	e.mu.Unlock()
}

func (e *entry) clear() {
	e.mu.Lock()
	e.ref = domain.NodeRef{}
	e.mu.Unlock()
}

// State is one node's view of the ring: its own identity, a fault-
// tolerant successor list, the predecessor, and a finger table sized to
// the identifier space's bit length (spec.md §2/§4.4).
type State struct {
	self  domain.NodeRef
	space domain.Space

	successorList []*entry
	predecessor   *entry
	finger        []*entry

	fixCursor int // rolling cursor for the batched fixFingers pass
	fixRound  int

	lgr logger.Logger
}

// New builds a State for self in the given identifier space, with a
// successor list of succListSize entries and a finger table of
// space.Bits entries — every slot starts unset until InitSolo or Join
// populates it.
func New(self domain.NodeRef, space domain.Space, succListSize int, lgr logger.Logger) *State {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	s := &State{
		self:          self,
		space:         space,
		successorList: make([]*entry, succListSize),
		predecessor:   &entry{},
		finger:        make([]*entry, space.Bits),
		lgr:           lgr.WithNode(self),
	}
	for i := range s.successorList {
		s.successorList[i] = &entry{}
	}
	for i := range s.finger {
		s.finger[i] = &entry{}
	}
	return s
}

// Self returns the node this State belongs to.
func (s *State) Self() domain.NodeRef { return s.self }

// Space returns the identifier space this State operates in.
func (s *State) Space() domain.Space { return s.space }

// InitSolo collapses the ring to a single node: self is its own
// successor and predecessor, with no peers yet known (spec.md §4.4
// "Without seed: successor = predecessor = self").
func (s *State) InitSolo() {
	s.successorList[0].set(s.self)
	for _, e := range s.successorList[1:] {
		e.clear()
	}
	s.predecessor.set(s.self)
	s.lgr.Info("chord: initialized as solo ring")
}

// Successor returns the first (immediate) successor, or false if unset.
func (s *State) Successor() (domain.NodeRef, bool) {
	return s.successorList[0].get()
}

// SetSuccessor installs ref as the immediate successor (index 0).
func (s *State) SetSuccessor(ref domain.NodeRef) {
	s.successorList[0].set(ref)
}

// SuccessorAt returns the i-th successor-list entry.
func (s *State) SuccessorAt(i int) (domain.NodeRef, bool) {
	if i < 0 || i >= len(s.successorList) {
		return domain.NodeRef{}, false
	}
	return s.successorList[i].get()
}

// SuccessorListSize returns the configured fault-tolerance depth.
func (s *State) SuccessorListSize() int { return len(s.successorList) }

// SuccessorList returns a snapshot of every populated successor-list entry.
func (s *State) SuccessorList() []domain.NodeRef {
	out := make([]domain.NodeRef, 0, len(s.successorList))
	for _, e := range s.successorList {
		if ref, ok := e.get(); ok {
			out = append(out, ref)
		}
	}
	return out
}

// SetSuccessorList overwrites the whole successor list; it pads or
// truncates to the configured size.
func (s *State) SetSuccessorList(refs []domain.NodeRef) {
	for i, e := range s.successorList {
		if i < len(refs) {
			e.set(refs[i])
		} else {
			e.clear()
		}
	}
}

// PromoteSuccessor shifts the successor list left so index i becomes the
// new immediate successor, discarding entries before it and padding the
// tail with unset slots (spec.md §4.4 "pick the first live, distinct
// finger/successor as new successor").
func (s *State) PromoteSuccessor(i int) {
	if i <= 0 || i >= len(s.successorList) {
		return
	}
	remaining := make([]domain.NodeRef, 0, len(s.successorList))
	for j := i; j < len(s.successorList); j++ {
		if ref, ok := s.successorList[j].get(); ok {
			remaining = append(remaining, ref)
		}
	}
	s.SetSuccessorList(remaining)
}

// Predecessor returns the current predecessor, or false if unset.
func (s *State) Predecessor() (domain.NodeRef, bool) {
	return s.predecessor.get()
}

// SetPredecessor installs ref as the predecessor.
func (s *State) SetPredecessor(ref domain.NodeRef) {
	s.predecessor.set(ref)
}

// ClearPredecessor unsets the predecessor (spec.md §4.4 checkPredecessor
// on detected death).
func (s *State) ClearPredecessor() {
	s.predecessor.clear()
}

// Finger returns the i-th finger-table entry.
func (s *State) Finger(i int) (domain.NodeRef, bool) {
	if i < 0 || i >= len(s.finger) {
		return domain.NodeRef{}, false
	}
	return s.finger[i].get()
}

// SetFinger installs ref at finger-table index i.
func (s *State) SetFinger(i int, ref domain.NodeRef) {
	if i < 0 || i >= len(s.finger) {
		return
	}
	s.finger[i].set(ref)
}

// FingerTableSize returns the number of finger-table slots (space.Bits).
func (s *State) FingerTableSize() int { return len(s.finger) }
