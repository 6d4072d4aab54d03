// Package storage keeps the terminal client's state on disk: the encrypted
// gateway session, the HTTP client and interactive prompts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/LegalLens/internal/models"
)

// SessionFile persists the gateway session in a passphrase-encrypted file.
// It implements identity.Persistence.
type SessionFile struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewSessionFile returns a SessionFile at path.
func NewSessionFile(path string, passphrase []byte) *SessionFile {
	return &SessionFile{path: path, passphrase: passphrase}
}

// Path returns the file location.
func (f *SessionFile) Path() string {
	return f.path
}

// Load returns nil, nil when the file does not exist.
func (f *SessionFile) Load(_ context.Context) (*models.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported session file version %d", env.Version)
	}
	aead, err := NewAEAD(f.passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	plain, err := open(aead, env.Data)
	if err != nil {
		return nil, err
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}

// Save encrypts rec with a fresh salt and replaces the file atomically.
func (f *SessionFile) Save(_ context.Context, rec *models.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	plain, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	aead, err := NewAEAD(f.passphrase, salt)
	if err != nil {
		return err
	}
	data, err := seal(aead, plain)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{Version: envelopeVersion, Salt: salt, Data: data})
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear removes the file. A missing file is not an error.
func (f *SessionFile) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// DefaultSessionPath is ~/.legallens/session.enc, or the working directory
// when the home directory is unknown.
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.enc"
	}
	return filepath.Join(home, ".legallens", "session.enc")
}
