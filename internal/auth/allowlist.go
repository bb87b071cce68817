// Package auth gates the terminal storefront by SSH public key and derives
// a stable per-customer identity from the key.
package auth

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrAllowlistNotFound is returned when the allowlist file doesn't exist.
var ErrAllowlistNotFound = errors.New("allowlist file not found")

// Allowlist is a set of authorized public keys.
type Allowlist struct {
	keys [][]byte
	// Skipped counts lines that did not parse as authorized keys.
	Skipped int
}

// LoadAllowlist reads an OpenSSH authorized_keys file. Blank lines and
// comments are ignored; malformed lines are counted in Skipped.
func LoadAllowlist(path string) (*Allowlist, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAllowlistNotFound
		}
		return nil, fmt.Errorf("opening allowlist: %w", err)
	}
	defer file.Close()

	al := &Allowlist{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			al.Skipped++
			continue
		}
		al.Add(pubKey)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading allowlist: %w", err)
	}
	return al, nil
}

// Add authorizes key.
func (a *Allowlist) Add(key ssh.PublicKey) {
	a.keys = append(a.keys, key.Marshal())
}

// Len returns the number of authorized keys.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Allowed reports whether key is in the allowlist.
func (a *Allowlist) Allowed(key ssh.PublicKey) bool {
	if a == nil || key == nil {
		return false
	}
	b := key.Marshal()
	for _, k := range a.keys {
		if bytes.Equal(b, k) {
			return true
		}
	}
	return false
}

// CreateEmptyAllowlist writes an allowlist containing only instructions.
func CreateEmptyAllowlist(path string) error {
	content := `# Lilyan terminal allowlist
# One public key per line, OpenSSH authorized_keys format:
# ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample... customer@host
`
	return os.WriteFile(path, []byte(content), 0644)
}

// ============================================
// Customer identity
// ============================================

// Fingerprint returns the SHA256 fingerprint of key, or "" for nil.
func Fingerprint(key ssh.PublicKey) string {
	if key == nil {
		return ""
	}
	return ssh.FingerprintSHA256(key)
}

// Namespace turns a key into a directory name for the customer's stored
// cart and draft. Sessions without a key share the "anonymous" namespace.
func Namespace(key ssh.PublicKey) string {
	fp := Fingerprint(key)
	if fp == "" {
		return "anonymous"
	}
	fp = strings.TrimPrefix(fp, "SHA256:")
	return strings.NewReplacer("/", "_", "+", "-", "=", "").Replace(fp)
}
