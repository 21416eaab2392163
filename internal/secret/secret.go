// Package secret resolves opaque secret URIs used by enrichment provider
// configuration (API keys, license keys) without requiring plaintext values
// in config files.
package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrPlaintextRejected is returned when a value has no scheme prefix.
// A bare secret in configuration is treated as a programming error.
var ErrPlaintextRejected = errors.New("secret: plaintext value rejected, use env: or file: scheme")

// ErrUnknownScheme is returned for a scheme this resolver does not implement.
var ErrUnknownScheme = errors.New("secret: unknown scheme")

// ErrEnvNotSet is returned when an env: reference names an unset variable.
var ErrEnvNotSet = errors.New("secret: environment variable not set")

// Resolver resolves a secret URI to its plaintext value. Additional
// resolvers (vault-style, encrypted file) can be composed by implementing
// this interface; only env: and file: are provided here.
type Resolver interface {
	Resolve(uri string) (string, error)
}

// Resolve resolves uri using the built-in env:/file: schemes.
//
// Supported forms:
//
//	env:NAME    -> os.Getenv("NAME"), error if unset or empty
//	file:/path  -> trimmed contents of the file at /path
//
// A uri with no "scheme:" prefix is rejected outright; callers must not
// pass plaintext secrets through configuration.
func Resolve(uri string) (string, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || scheme == "" {
		return "", fmt.Errorf("%w: %q", ErrPlaintextRejected, redact(uri))
	}

	switch scheme {
	case "env":
		val, ok := os.LookupEnv(rest)
		if !ok || val == "" {
			return "", fmt.Errorf("%w: %s", ErrEnvNotSet, rest)
		}
		return val, nil
	case "file":
		data, err := os.ReadFile(rest)
		if err != nil {
			return "", fmt.Errorf("secret: reading file %s: %w", rest, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}

// redact avoids ever logging or echoing a plaintext value that was
// mistakenly passed where a secret URI was expected.
func redact(uri string) string {
	if len(uri) <= 4 {
		return "****"
	}
	return uri[:2] + "****"
}

// StaticResolver returns a fixed value regardless of the uri argument. Used
// in tests and in call sites that have already resolved a secret once and
// want to hand the resolved string to a constructor expecting a Resolver.
type StaticResolver string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(string) (string, error) {
	if s == "" {
		return "", ErrEnvNotSet
	}
	return string(s), nil
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(uri string) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(uri string) (string, error) { return f(uri) }

// Default is the package-level Resolver backed by Resolve.
var Default Resolver = ResolverFunc(Resolve)
