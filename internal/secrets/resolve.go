// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package secrets

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

const scheme = "keyring://"

// IsKeyringURI reports whether value is a keyring:// reference.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseKeyringURI splits keyring://service/key. The key may contain slashes.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", mserr.Errorf(mserr.CodeSecretURIInvalid, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", mserr.Errorf(mserr.CodeSecretURIInvalid, "malformed keyring URI %q, want keyring://service/key", uri)
	}
	return service, key, nil
}

// KeyringURI builds the reference for service/key.
func KeyringURI(service, key string) string {
	return scheme + service + "/" + key
}

// Resolve returns the secret a keyring URI points at, or value itself when
// it is not a URI.
func Resolve(lookup Lookup, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}
	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}
	secret, err := lookup(service, key)
	if err != nil {
		return "", mserr.With(err, mserr.Field("uri", value))
	}
	return secret, nil
}

// ResolveViper replaces every keyring URI among v's string settings with its
// secret. All failures are reported together, each naming its config key.
func ResolveViper(v *viper.Viper, lookup Lookup) error {
	keys := v.AllKeys()
	slices.Sort(keys)

	var errs []error
	for _, k := range keys {
		raw, ok := v.Get(k).(string)
		if !ok || !IsKeyringURI(raw) {
			continue
		}
		secret, err := Resolve(lookup, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", k, raw, err))
			continue
		}
		v.Set(k, secret)
	}
	return mserr.Wrap(errors.Join(errs...), mserr.CodeConfigValidateInvalidValue, "resolving keyring references")
}
