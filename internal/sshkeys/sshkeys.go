// Package sshkeys manages per-user ed25519 deploy keys. Private keys are
// written unencrypted with 0600 permissions because git invokes ssh with
// the raw file path (core.sshCommand -i <path>).
package sshkeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/schema"
)

const (
	privFile = "id_ed25519"
	pubFile  = "id_ed25519.pub"
)

// Store keeps one keypair per principal under keyDir/<chat-id>/.
type Store struct {
	keyDir string
	log    pslog.Logger
}

// NewStore initializes the key directory.
func NewStore(keyDir string) (*Store, error) {
	return NewStoreWithLogger(keyDir, nil)
}

// NewStoreWithLogger initializes the key directory with logging.
func NewStoreWithLogger(keyDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(keyDir) == "" {
		return nil, fmt.Errorf("ssh key directory is required")
	}
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("ssh_key_dir", keyDir)
	}
	return &Store{keyDir: keyDir, log: logger}, nil
}

// EnsureKey returns the public key for the principal, generating a new
// keypair when none exists yet.
func (s *Store) EnsureKey(id schema.ChatID) (string, error) {
	if strings.TrimSpace(string(id)) == "" {
		return "", errors.New("chat id is required")
	}
	exists, err := s.keyExists(id)
	if err != nil {
		if s.log != nil {
			s.log.Warn("ssh key stat failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	if !exists {
		return s.GenerateKey(id)
	}
	return s.LoadPublicKey(id)
}

// GenerateKey creates a new keypair for the principal, replacing any
// existing one.
func (s *Store) GenerateKey(id schema.ChatID) (string, error) {
	if strings.TrimSpace(string(id)) == "" {
		return "", errors.New("chat id is required")
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		if s.log != nil {
			s.log.Warn("ssh key generate failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	block, err := ssh.MarshalPrivateKey(priv, "gitdocs:"+string(id))
	if err != nil {
		if s.log != nil {
			s.log.Warn("ssh key generate failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	plain := pem.EncodeToMemory(block)

	dir := s.userDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("ssh key write failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "key-*")
	if err != nil {
		if s.log != nil {
			s.log.Warn("ssh key write failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if _, err := tmp.Write(plain); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if s.log != nil {
			s.log.Warn("ssh key write failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, s.PrivateKeyPath(id)); err != nil {
		_ = os.Remove(tmpPath)
		if s.log != nil {
			s.log.Warn("ssh key write failed", "chat_id", id, "err", err)
		}
		return "", err
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	pub := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := os.WriteFile(s.publicKeyPath(id), pub, 0o644); err != nil {
		if s.log != nil {
			s.log.Warn("ssh key write failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	if s.log != nil {
		s.log.Info("ssh key generated", "chat_id", id)
	}
	return strings.TrimSpace(string(pub)), nil
}

// RemoveKey deletes stored key material for the principal.
func (s *Store) RemoveKey(id schema.ChatID) error {
	dir := s.userDir(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		if s.log != nil {
			s.log.Warn("ssh key remove failed", "chat_id", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("ssh key removed", "chat_id", id)
	}
	return nil
}

// LoadPublicKey returns the stored public key in authorized_keys format.
func (s *Store) LoadPublicKey(id schema.ChatID) (string, error) {
	data, err := os.ReadFile(s.publicKeyPath(id))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("ssh key public load failed", "chat_id", id, "err", err)
		}
		return "", err
	}
	// Recover the public half from the private key.
	raw, err := os.ReadFile(s.PrivateKeyPath(id))
	if err != nil {
		return "", err
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// PrivateKeyPath returns the on-disk path of the principal's private key.
// The path is stable and safe to embed in core.sshCommand.
func (s *Store) PrivateKeyPath(id schema.ChatID) string {
	return filepath.Join(s.userDir(id), privFile)
}

func (s *Store) publicKeyPath(id schema.ChatID) string {
	return filepath.Join(s.userDir(id), pubFile)
}

func (s *Store) userDir(id schema.ChatID) string {
	return filepath.Join(s.keyDir, string(id))
}

func (s *Store) keyExists(id schema.ChatID) (bool, error) {
	info, err := os.Stat(s.PrivateKeyPath(id))
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
