package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestLoadAllowlist(t *testing.T) {
	allowed, stranger := newKey(t), newKey(t)

	path := filepath.Join(t.TempDir(), "authorized_keys")
	content := "# comment\n\n" + string(ssh.MarshalAuthorizedKey(allowed)) + "not a key\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	al, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist failed: %v", err)
	}
	if al.Len() != 1 || al.Skipped != 1 {
		t.Errorf("expected 1 key and 1 skipped line, got %d and %d", al.Len(), al.Skipped)
	}
	if !al.Allowed(allowed) {
		t.Error("expected listed key allowed")
	}
	if al.Allowed(stranger) || al.Allowed(nil) {
		t.Error("expected unlisted and nil keys rejected")
	}
}

func TestMissingAndEmptyAllowlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authorized_keys")
	if _, err := LoadAllowlist(path); !errors.Is(err, ErrAllowlistNotFound) {
		t.Fatalf("expected ErrAllowlistNotFound, got %v", err)
	}

	if err := CreateEmptyAllowlist(path); err != nil {
		t.Fatal(err)
	}
	al, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist failed: %v", err)
	}
	if al.Len() != 0 || al.Skipped != 0 {
		t.Errorf("expected an empty allowlist, got %d keys", al.Len())
	}
}

func TestNamespace(t *testing.T) {
	key := newKey(t)

	ns := Namespace(key)
	if ns != Namespace(key) {
		t.Error("expected a stable namespace")
	}
	if strings.ContainsAny(ns, "/+=:") {
		t.Errorf("namespace %q is not path-safe", ns)
	}
	if ns == Namespace(newKey(t)) {
		t.Error("expected distinct keys to get distinct namespaces")
	}
	if Namespace(nil) != "anonymous" || Fingerprint(nil) != "" {
		t.Error("expected anonymous namespace for nil key")
	}
	if !strings.HasPrefix(Fingerprint(key), "SHA256:") {
		t.Errorf("unexpected fingerprint %q", Fingerprint(key))
	}
}
