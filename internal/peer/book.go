package peer

import (
	"fmt"
	"sync"
)

// Book maps peer identifiers to transport addresses (WebSocket URLs) and
// back. Each direction is a function: addresses and identifiers are both
// unique within a Book. A Book is safe for concurrent use, though in this
// system each Book instance is owned by exactly one endpoint/engine.
type Book struct {
	mu        sync.RWMutex
	addrByID  map[string]string
	idByAddr  map[string]string
}

// NewBook creates an empty peer book.
func NewBook() *Book {
	return &Book{
		addrByID: make(map[string]string),
		idByAddr: make(map[string]string),
	}
}

// Put records the address for a peer identifier, replacing any prior
// mapping for either side to preserve the bijection.
func (b *Book) Put(id, address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if oldAddr, ok := b.addrByID[id]; ok {
		delete(b.idByAddr, oldAddr)
	}
	if oldID, ok := b.idByAddr[address]; ok {
		delete(b.addrByID, oldID)
	}
	b.addrByID[id] = address
	b.idByAddr[address] = id
}

// Remove deletes the peer and its address from the book.
func (b *Book) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if addr, ok := b.addrByID[id]; ok {
		delete(b.addrByID, id)
		delete(b.idByAddr, addr)
	}
}

// AddressOf resolves a peer identifier to its transport address.
func (b *Book) AddressOf(id string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	addr, ok := b.addrByID[id]
	if !ok {
		return "", fmt.Errorf("peer: no address known for peer %q", id)
	}
	return addr, nil
}

// IDOf resolves a transport address to its peer identifier.
func (b *Book) IDOf(address string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.idByAddr[address]
	if !ok {
		return "", fmt.Errorf("peer: no peer known for address %q", address)
	}
	return id, nil
}
