// Package state persists small per-session records (checkpoints, injection
// hashes, collection ids) behind a key-value interface with interchangeable
// backends.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrNotFound   = errors.New("state: key not found")
	ErrInvalidKey = errors.New("state: invalid key")
	ErrClosed     = errors.New("state: store closed")
)

// Store is a small key-value store. Keys have the form "namespace/name".
//
// Get returns ErrNotFound for absent keys. Set overwrites; with a single
// writer per session that is all the coordination needed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// List returns keys beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Key joins a namespace and a name.
func Key(namespace, name string) string {
	return namespace + "/" + name
}

// splitKey validates key and returns its parts. Neither part may be empty or
// contain path separators or "..".
func splitKey(key string) (namespace, name string, err error) {
	namespace, name, ok := strings.Cut(key, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := validateComponent(namespace); err != nil {
		return "", "", err
	}
	if err := validateComponent(name); err != nil {
		return "", "", err
	}
	return namespace, name, nil
}

func validateComponent(s string) error {
	if s == "" || strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return nil
}

// GetJSON decodes the value under key into v.
// found is false when the key is absent; a decode failure is returned as an
// error so callers can decide whether corrupt data means "absent".
func GetJSON(ctx context.Context, s Store, key string, v any) (found bool, err error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
