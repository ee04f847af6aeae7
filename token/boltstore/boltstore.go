// Package boltstore provides a BBolt-backed token store that survives restarts.
package boltstore

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/token"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
)

var bucketName = []byte("tokens")

// Store implements token.Store backed by a BBolt database. When a key is
// supplied, every slot is sealed with XChaCha20-Poly1305 before it is written.
type Store struct {
	db   *bbolt.DB
	seal sealer
}

var _ token.Store = (*Store)(nil)

type Option func(*Store) error

// WithKey seals stored tokens with the given 32-byte key
func WithKey(key []byte) Option {
	return func(s *Store) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("creating token cipher: %w", err)
		}
		s.seal = aeadSealer{aead: aead}
		return nil
	}
}

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB, options ...Option) (*Store, error) {
	s := &Store{db: db, seal: plainSealer{}}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating token bucket: %w", err)
	}
	return s, nil
}

// NewFromFile opens a BBolt database at the given path and returns a new Store.
func NewFromFile(path string, boltOptions *bbolt.Options, options ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, boltOptions)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db, options...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(kind token.Kind) (string, error) {
	var raw string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return fmt.Errorf("%s: %w", kind, apperrors.ErrTokenNotFound)
		}
		data := b.Get([]byte(kind))
		if data == nil {
			return fmt.Errorf("%s: %w", kind, apperrors.ErrTokenNotFound)
		}
		plain, err := s.seal.open(data, []byte(kind))
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		raw = string(plain)
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Store) Set(kind token.Kind, raw string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown token kind %q", kind)
	}
	if raw == "" {
		return s.db.Update(func(tx *bbolt.Tx) error {
			if b := tx.Bucket(bucketName); b != nil {
				return b.Delete([]byte(kind))
			}
			return nil
		})
	}
	sealed, err := s.seal.seal([]byte(raw), []byte(kind))
	if err != nil {
		return fmt.Errorf("sealing %s token: %w", kind, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(kind), sealed)
	})
}

// ClearAll drops and recreates the token bucket in one transaction, so a
// concurrent Get never observes one slot without the other.
func (s *Store) ClearAll() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketName) != nil {
			if err := tx.DeleteBucket(bucketName); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

type sealer interface {
	seal(plain, aad []byte) ([]byte, error)
	open(sealed, aad []byte) ([]byte, error)
}

type plainSealer struct{}

func (plainSealer) seal(plain, _ []byte) ([]byte, error) { return plain, nil }
func (plainSealer) open(sealed, _ []byte) ([]byte, error) {
	out := make([]byte, len(sealed))
	copy(out, sealed)
	return out, nil
}

type aeadSealer struct {
	aead cipher.AEAD
}

func (a aeadSealer) seal(plain, aad []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plain)+a.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, plain, aad), nil
}

func (a aeadSealer) open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < a.aead.NonceSize() {
		return nil, apperrors.ErrInvalidToken
	}
	nonce, ciphertext := sealed[:a.aead.NonceSize()], sealed[a.aead.NonceSize():]
	plain, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	return plain, nil
}
