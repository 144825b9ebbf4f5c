package tokens

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudx-io/scionauction/core"
)

var (
	ErrTokenExists  = errors.New("token already exists")
	ErrTokenMissing = errors.New("token does not exist")
	ErrWrongOwner   = errors.New("token not owned by sender")
)

// Registry is an in-memory non-fungible ownership table.
type Registry struct {
	mu     sync.RWMutex
	name   string
	owners map[uint64]core.Address
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:   name,
		owners: make(map[uint64]core.Address),
	}
}

// OwnerOf returns the owner of id.
func (r *Registry) OwnerOf(id uint64) (core.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	if !ok {
		return "", fmt.Errorf("%s #%d: %w", r.name, id, ErrTokenMissing)
	}
	return owner, nil
}

// Mint creates id owned by to.
func (r *Registry) Mint(to core.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; ok {
		return fmt.Errorf("%s #%d: %w", r.name, id, ErrTokenExists)
	}
	r.owners[id] = to
	return nil
}

// Burn destroys id.
func (r *Registry) Burn(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return fmt.Errorf("%s #%d: %w", r.name, id, ErrTokenMissing)
	}
	delete(r.owners, id)
	return nil
}

// Transfer moves id from one owner to another.
func (r *Registry) Transfer(from, to core.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return fmt.Errorf("%s #%d: %w", r.name, id, ErrTokenMissing)
	}
	if owner != from {
		return fmt.Errorf("%s #%d: %w", r.name, id, ErrWrongOwner)
	}
	r.owners[id] = to
	return nil
}

// TokensOf lists the ids owned by addr in ascending order.
func (r *Registry) TokensOf(addr core.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uint64
	for id, owner := range r.owners {
		if owner == addr {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
