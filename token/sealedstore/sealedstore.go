// Package sealedstore keeps session tokens in process memory, sealed in
// memguard enclaves so they are encrypted while not being read.
package sealedstore

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/token"
)

// Store implements token.Store with one enclave per slot.
type Store struct {
	mu    sync.RWMutex
	slots map[token.Kind]*memguard.Enclave
}

var _ token.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		slots: make(map[token.Kind]*memguard.Enclave),
	}
}

func (s *Store) Get(kind token.Kind) (string, error) {
	s.mu.RLock()
	enclave, ok := s.slots[kind]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", kind, apperrors.ErrTokenNotFound)
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s enclave: %w", kind, err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Set seals raw into a fresh enclave. The intermediate byte slice is wiped by
// memguard; an empty raw value removes the slot.
func (s *Store) Set(kind token.Kind, raw string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown token kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw == "" {
		delete(s.slots, kind)
		return nil
	}
	s.slots[kind] = memguard.NewEnclave([]byte(raw))
	return nil
}

func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots = make(map[token.Kind]*memguard.Enclave)
	return nil
}
