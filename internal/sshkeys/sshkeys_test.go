package sshkeys

import (
	"os"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/mkrav/gitdocs/schema"
)

func TestEnsureKeyGeneratesOnce(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id := schema.ChatID("12345")

	pub1, err := store.EnsureKey(id)
	if err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}
	if !strings.HasPrefix(pub1, "ssh-ed25519 ") {
		t.Fatalf("unexpected public key format: %q", pub1)
	}
	pub2, err := store.EnsureKey(id)
	if err != nil {
		t.Fatalf("EnsureKey second call: %v", err)
	}
	if pub1 != pub2 {
		t.Fatalf("EnsureKey must be stable: %q vs %q", pub1, pub2)
	}
}

func TestGenerateKeyWritesUsablePrivateKey(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id := schema.ChatID("67890")
	pub, err := store.GenerateKey(id)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	path := store.PrivateKeyPath(id)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("private key missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("private key mode %o, want 600", perm)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read private key: %v", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	got := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
	if got != pub {
		t.Fatalf("public key mismatch:\n%s\n%s", got, pub)
	}
}

func TestGenerateKeyReplacesExisting(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id := schema.ChatID("42")
	pub1, err := store.GenerateKey(id)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub2, err := store.GenerateKey(id)
	if err != nil {
		t.Fatalf("GenerateKey again: %v", err)
	}
	if pub1 == pub2 {
		t.Fatalf("expected a fresh keypair on regenerate")
	}
}

func TestLoadPublicKeyRecoversFromPrivate(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id := schema.ChatID("7")
	pub, err := store.GenerateKey(id)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := os.Remove(store.PrivateKeyPath(id) + ".pub"); err != nil {
		t.Fatalf("remove public key: %v", err)
	}
	got, err := store.LoadPublicKey(id)
	if err != nil {
		t.Fatalf("LoadPublicKey: %v", err)
	}
	if got != pub {
		t.Fatalf("recovered key mismatch:\n%s\n%s", got, pub)
	}
}

func TestRemoveKeyIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id := schema.ChatID("gone")
	if _, err := store.GenerateKey(id); err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := store.RemoveKey(id); err != nil {
		t.Fatalf("RemoveKey: %v", err)
	}
	if err := store.RemoveKey(id); err != nil {
		t.Fatalf("RemoveKey second call: %v", err)
	}
	if _, err := store.EnsureKey(id); err != nil {
		t.Fatalf("EnsureKey after remove: %v", err)
	}
}

func TestEmptyArguments(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatal("expected error for empty key dir")
	}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.EnsureKey(""); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}
