package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emberline/checkout/internal/domain"
)

// CartSnapshot is the immutable view delivered to subscribers and readers.
type CartSnapshot struct {
	Lines []domain.CartLine
	Count int
	Total int64
}

// CartStore holds the in-progress cart. Lines keep insertion order; adding an
// existing line merges quantities in place. The store is shared process state
// so every access is mutex-guarded, and subscribers receive a snapshot after
// each mutation.
type CartStore struct {
	mu          sync.Mutex
	order       []string
	lines       map[string]domain.CartLine
	subscribers map[int]func(CartSnapshot)
	nextSubID   int
	now         func() time.Time
}

// NewCartStore constructs an empty cart store. A nil clock defaults to time.Now.
func NewCartStore(clock func() time.Time) *CartStore {
	if clock == nil {
		clock = time.Now
	}
	return &CartStore{
		lines:       make(map[string]domain.CartLine),
		subscribers: make(map[int]func(CartSnapshot)),
		now:         func() time.Time { return clock().UTC() },
	}
}

// Add inserts a line or merges its quantity into an existing line with the
// same id. The original position and added-at timestamp survive a merge.
func (s *CartStore) Add(line domain.CartLine) error {
	if strings.TrimSpace(line.ID) == "" {
		return fmt.Errorf("%w: line id is required", ErrValidation)
	}
	if line.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if line.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrValidation)
	}
	if line.IsPreOrder() && line.PreOrder == nil {
		return fmt.Errorf("%w: pre-order line is missing pre-order details", ErrValidation)
	}

	s.mu.Lock()
	if existing, ok := s.lines[line.ID]; ok {
		existing.Quantity += line.Quantity
		s.lines[line.ID] = existing
	} else {
		line.AddedAt = s.now()
		s.lines[line.ID] = line
		s.order = append(s.order, line.ID)
	}
	snapshot := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return nil
}

// Remove deletes a line by id. Removing an absent line is not an error.
func (s *CartStore) Remove(id string) {
	s.mu.Lock()
	s.removeLocked(id)
	snapshot := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
}

// UpdateQuantity sets the quantity of an existing line. A quantity below 1
// removes the line.
func (s *CartStore) UpdateQuantity(id string, quantity int) error {
	s.mu.Lock()
	line, ok := s.lines[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: cart line %s", ErrNotFound, id)
	}
	if quantity < 1 {
		s.removeLocked(id)
	} else {
		line.Quantity = quantity
		s.lines[id] = line
	}
	snapshot := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return nil
}

// Clear empties the cart.
func (s *CartStore) Clear() {
	s.mu.Lock()
	s.order = nil
	s.lines = make(map[string]domain.CartLine)
	snapshot := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
}

// ClearLines removes only the given line ids, leaving the rest of the cart
// untouched.
func (s *CartStore) ClearLines(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		s.removeLocked(id)
	}
	snapshot := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
}

// Get returns a line by id.
func (s *CartStore) Get(id string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	return line, ok
}

// Snapshot returns the current lines, count, and total.
func (s *CartStore) Snapshot() CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Count returns the sum of line quantities.
func (s *CartStore) Count() int {
	return s.Snapshot().Count
}

// Total returns the sum of unit price times quantity over all lines.
func (s *CartStore) Total() int64 {
	return s.Snapshot().Total
}

// Subscribe registers fn for snapshot notifications after every mutation.
// The returned function removes the subscription.
func (s *CartStore) Subscribe(fn func(CartSnapshot)) (func(), error) {
	if fn == nil {
		return nil, errors.New("cart store: subscriber is required")
	}
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}, nil
}

func (s *CartStore) removeLocked(id string) {
	if _, ok := s.lines[id]; !ok {
		return
	}
	delete(s.lines, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *CartStore) snapshotLocked() CartSnapshot {
	snapshot := CartSnapshot{Lines: make([]domain.CartLine, 0, len(s.order))}
	for _, id := range s.order {
		line := s.lines[id]
		snapshot.Lines = append(snapshot.Lines, line)
		snapshot.Count += line.Quantity
		snapshot.Total += line.Subtotal()
	}
	return snapshot
}

func (s *CartStore) subscribersLocked() []func(CartSnapshot) {
	subs := make([]func(CartSnapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the store lock so subscribers may call back into the store.
func notify(subs []func(CartSnapshot), snapshot CartSnapshot) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
