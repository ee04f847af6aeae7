package tokenfakerepo

import (
	"sync"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/token"
)

var _ token.Store = (*FakeTokenStore)(nil)

type FakeTokenStore struct {
	tokens map[token.Kind]string
	clears int
	lock   sync.RWMutex
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{
		tokens: make(map[token.Kind]string),
	}
}

func (ts *FakeTokenStore) Get(kind token.Kind) (string, error) {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	raw, ok := ts.tokens[kind]
	if !ok {
		return "", apperrors.ErrTokenNotFound
	}
	return raw, nil
}

func (ts *FakeTokenStore) Set(kind token.Kind, raw string) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	if raw == "" {
		delete(ts.tokens, kind)
		return nil
	}
	ts.tokens[kind] = raw
	return nil
}

func (ts *FakeTokenStore) ClearAll() error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	ts.tokens = make(map[token.Kind]string)
	ts.clears++
	return nil
}

// Len returns the number of occupied slots
func (ts *FakeTokenStore) Len() int {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return len(ts.tokens)
}

// Clears returns how many times ClearAll has been called
func (ts *FakeTokenStore) Clears() int {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return ts.clears
}
