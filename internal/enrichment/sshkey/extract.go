// Package sshkey implements the SSH-key enricher (§4.K): extracting public
// keys planted by authorized_keys-manipulation commands, fingerprinting
// them, and recording per-key intelligence plus a session↔key link. Ported
// from cowrieprocessor/enrichment/ssh_key_extractor.py.
package sshkey

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// ExtractedKey is a single SSH public key found in a command string.
type ExtractedKey struct {
	KeyType          string
	KeyData          string
	Comment          string
	Full             string
	Fingerprint      string
	Hash             string
	Bits             *int
	ExtractionMethod string
	TargetPath       string
}

var keyTypePatterns = map[string]*regexp.Regexp{
	"ssh-rsa":             regexp.MustCompile(`(?is)ssh-rsa\s+([A-Za-z0-9+/=]+)`),
	"ssh-ed25519":         regexp.MustCompile(`(?is)ssh-ed25519\s+([A-Za-z0-9+/=]+)`),
	"ecdsa-sha2-nistp256": regexp.MustCompile(`(?is)ecdsa-sha2-nistp256\s+([A-Za-z0-9+/=]+)`),
	"ecdsa-sha2-nistp384": regexp.MustCompile(`(?is)ecdsa-sha2-nistp384\s+([A-Za-z0-9+/=]+)`),
	"ecdsa-sha2-nistp521": regexp.MustCompile(`(?is)ecdsa-sha2-nistp521\s+([A-Za-z0-9+/=]+)`),
	"ssh-dss":             regexp.MustCompile(`(?is)ssh-dss\s+([A-Za-z0-9+/=]+)`),
}

// keyTypeOrder fixes iteration order so extraction is deterministic, unlike
// ranging over the map directly.
var keyTypeOrder = []string{
	"ssh-rsa", "ssh-ed25519", "ecdsa-sha2-nistp256", "ecdsa-sha2-nistp384", "ecdsa-sha2-nistp521", "ssh-dss",
}

var targetPathPattern = regexp.MustCompile(`(?i)([^\s;|&]+authorized_keys\d*)`)
var base64ObfuscationPattern = regexp.MustCompile(`(?is)echo\s+([A-Za-z0-9+/=]{40,})\s*\|\s*base64\s+-d`)

// ExtractFromCommand finds every SSH public key embedded in command,
// trying heredoc, direct-embedding, and base64-obfuscated forms in that
// order and deduplicating by content hash across all three.
func ExtractFromCommand(command string) []ExtractedKey {
	var keys []ExtractedKey
	seen := map[string]bool{}

	add := func(found []ExtractedKey) {
		for _, k := range found {
			if seen[k.Hash] {
				continue
			}
			seen[k.Hash] = true
			keys = append(keys, k)
		}
	}

	add(extractHeredoc(command))
	add(extractDirect(command))
	add(extractBase64(command))

	return keys
}

func extractDirect(command string) []ExtractedKey {
	var keys []ExtractedKey
	targetPath := extractTargetPath(command)

	for _, keyType := range keyTypeOrder {
		pattern := keyTypePatterns[keyType]
		for _, match := range pattern.FindAllStringSubmatch(command, -1) {
			keyData := strings.TrimSpace(match[1])
			if !isValidBase64(keyData) {
				continue
			}

			full := match[0]
			comment := ""
			commentPattern := regexp.MustCompile(
				fmt.Sprintf(`(?i)%s\s+%s\s+([^\s"']+(?:\s+[^\s"']+)*)`, regexp.QuoteMeta(keyType), regexp.QuoteMeta(keyData)))
			if cm := commentPattern.FindStringSubmatch(command); cm != nil {
				comment = strings.TrimSpace(cm[1])
				full = cm[0]
			}

			keys = append(keys, ExtractedKey{
				KeyType:          keyType,
				KeyData:          keyData,
				Comment:          comment,
				Full:             strings.TrimSpace(full),
				Fingerprint:      calculateFingerprint(keyData),
				Hash:             calculateHash(keyType + " " + keyData),
				Bits:             estimateKeyBits(keyType, keyData),
				ExtractionMethod: "direct",
				TargetPath:       targetPath,
			})
		}
	}
	return keys
}

func extractBase64(command string) []ExtractedKey {
	var keys []ExtractedKey
	for _, match := range base64ObfuscationPattern.FindAllStringSubmatch(command, -1) {
		decoded, err := base64.StdEncoding.DecodeString(match[1])
		if err != nil {
			continue
		}
		for _, k := range extractDirect(string(decoded)) {
			k.ExtractionMethod = "base64_encoded"
			keys = append(keys, k)
		}
	}
	return keys
}

func extractHeredoc(command string) []ExtractedKey {
	var keys []ExtractedKey
	// Go's RE2 has no backreferences, so the closing delimiter can't be
	// matched directly; take everything after the opener as the body and
	// let extractDirect pick the key lines out of it, same as a delimiter
	// match would after trimming the trailing EOF marker.
	opener := regexp.MustCompile(`(?is)cat\s*<<\s*(\w+)\s*>>?\s*([^\s;|&]+authorized_keys)`)
	loc := opener.FindStringSubmatchIndex(command)
	if loc == nil {
		return nil
	}
	delimiter := command[loc[2]:loc[3]]
	targetPath := command[loc[4]:loc[5]]
	body := command[loc[1]:]
	if idx := strings.Index(body, delimiter); idx >= 0 {
		body = body[:idx]
	}

	for _, k := range extractDirect(body) {
		k.ExtractionMethod = "heredoc"
		k.TargetPath = targetPath
		keys = append(keys, k)
	}
	return keys
}

func extractTargetPath(command string) string {
	m := targetPathPattern.FindStringSubmatch(command)
	if m == nil {
		return ""
	}
	return m[1]
}

func isValidBase64(data string) bool {
	_, err := base64.StdEncoding.DecodeString(data)
	return err == nil
}

// calculateFingerprint mirrors the Python client's SHA-256 fingerprint:
// base64 of the SHA-256 digest of the decoded key bytes, SSH-standard
// padding stripped.
func calculateFingerprint(keyData string) string {
	decoded, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		sum := sha256.Sum256([]byte(keyData))
		return hex.EncodeToString(sum[:])[:43]
	}
	sum := sha256.Sum256(decoded)
	return strings.TrimRight(base64.StdEncoding.EncodeToString(sum[:]), "=")
}

func calculateHash(keyString string) string {
	sum := sha256.Sum256([]byte(keyString))
	return hex.EncodeToString(sum[:])
}

// estimateKeyBits approximates key size from type and decoded byte length,
// the way the Python extractor does — exact for ed25519/ECDSA, a bucketed
// guess for RSA.
func estimateKeyBits(keyType, keyData string) *int {
	decoded, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		return nil
	}
	n := len(decoded)

	bits := func(v int) *int { return &v }

	switch {
	case keyType == "ssh-rsa":
		switch {
		case n < 300:
			return bits(2048)
		case n < 500:
			return bits(3072)
		default:
			return bits(4096)
		}
	case keyType == "ssh-ed25519":
		return bits(256)
	case strings.Contains(keyType, "ecdsa"):
		switch {
		case strings.Contains(keyType, "nistp256"):
			return bits(256)
		case strings.Contains(keyType, "nistp384"):
			return bits(384)
		case strings.Contains(keyType, "nistp521"):
			return bits(521)
		}
	}
	return nil
}
