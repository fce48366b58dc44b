// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// indexKey holds a JSON list of the service's key names. go-keyring cannot
// enumerate entries.
const indexKey = "::index"

var _ Store = (*KeyringStore)(nil)

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store for service, DefaultService when empty.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Service() string { return s.service }

func (s *KeyringStore) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == "" {
		return mserr.New(mserr.CodeSecretInputInvalid, "secret value must not be empty", mserr.Field("key", key))
	}
	if err := keyring.Set(s.service, key, value); err != nil {
		return mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "storing %s/%s", s.service, key)
	}

	keys, err := s.Keys()
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.saveIndex(append(keys, key))
}

func (s *KeyringStore) Get(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return KeyringLookup(s.service, key)
}

func (s *KeyringStore) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := keyring.Delete(s.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return notFound(s.service, key)
		}
		return mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "deleting %s/%s", s.service, key)
	}

	keys, err := s.Keys()
	if err != nil {
		return err
	}
	return s.saveIndex(slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (s *KeyringStore) Keys() ([]string, error) {
	raw, err := keyring.Get(s.service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "reading key index of %s", s.service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "decoding key index of %s", s.service)
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(s.service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", s.service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "encoding key index of %s", s.service)
	}
	if err := keyring.Set(s.service, indexKey, string(data)); err != nil {
		return mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "writing key index of %s", s.service)
	}
	return nil
}

// KeyringLookup reads service/key from the OS keyring.
func KeyringLookup(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", notFound(service, key)
	}
	if err != nil {
		return "", mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "reading %s/%s", service, key)
	}
	return v, nil
}

func checkKey(key string) error {
	if key == "" || key == indexKey {
		return mserr.New(mserr.CodeSecretInputInvalid, "secret key must be a non-empty name", mserr.Field("key", key))
	}
	return nil
}

func notFound(service, key string) error {
	return mserr.New(mserr.CodeSecretNotFound, "secret "+service+"/"+key+" not found",
		mserr.Field("service", service), mserr.Field("key", key))
}
