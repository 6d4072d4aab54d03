package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
)

func testRecord() *models.SessionRecord {
	return &models.SessionRecord{
		UID:          "u1",
		Email:        "bob@example.com",
		DisplayName:  "Bob",
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoad_FileNotExist(t *testing.T) {
	f := NewSessionFile(filepath.Join(t.TempDir(), "session.enc"), []byte("pass"))
	rec, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected no record, got %+v", rec)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.enc")
	f := NewSessionFile(path, []byte("correct horse"))
	ctx := context.Background()

	if err := f.Save(ctx, testRecord()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o; want 600", perm)
	}

	// A second handle, as a new process would open it.
	rec, err := NewSessionFile(path, []byte("correct horse")).Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *rec != *testRecord() {
		t.Errorf("loaded %+v; want %+v", rec, testRecord())
	}
}

func TestSave_DoesNotStorePlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	if err := NewSessionFile(path, []byte("pass")).Save(context.Background(), testRecord()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	raw, _ := os.ReadFile(path)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("file is not an envelope: %v", err)
	}
	if env.Version != envelopeVersion || len(env.Salt) != saltLen {
		t.Errorf("unexpected envelope header: version=%d salt=%d", env.Version, len(env.Salt))
	}
	for _, secret := range []string{"refresh-token", "id-token", "bob@example.com"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("file contains %q in clear text", secret)
		}
	}
}

func TestLoad_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	ctx := context.Background()
	if err := NewSessionFile(path, []byte("right")).Save(ctx, testRecord()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, err := NewSessionFile(path, []byte("wrong")).Load(ctx)
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("Load error = %v; want ErrDecrypt", err)
	}
}

func TestLoad_Corrupted(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	garbage := filepath.Join(dir, "garbage.enc")
	_ = os.WriteFile(garbage, []byte("not json"), 0o600)
	if _, err := NewSessionFile(garbage, []byte("p")).Load(ctx); err == nil {
		t.Error("expected error for non-JSON file")
	}

	future := filepath.Join(dir, "future.enc")
	_ = os.WriteFile(future, []byte(`{"version":99}`), 0o600)
	if _, err := NewSessionFile(future, []byte("p")).Load(ctx); err == nil {
		t.Error("expected error for unknown version")
	}

	short := filepath.Join(dir, "short.enc")
	_ = os.WriteFile(short, []byte(`{"version":1,"salt":"AAAAAAAAAAAAAAAAAAAAAA==","data":"AAE="}`), 0o600)
	if _, err := NewSessionFile(short, []byte("p")).Load(ctx); !errors.Is(err, ErrDecrypt) {
		t.Errorf("short data error = %v; want ErrDecrypt", err)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	f := NewSessionFile(path, []byte("pass"))
	ctx := context.Background()

	if err := f.Clear(ctx); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if err := f.Save(ctx, testRecord()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := f.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}
	rec, err := f.Load(ctx)
	if err != nil || rec != nil {
		t.Errorf("Load after Clear = %v, %v; want nil, nil", rec, err)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewSessionFile(filepath.Join(dir, "session.enc"), []byte("pass"))
	for i := 0; i < 3; i++ {
		if err := f.Save(context.Background(), testRecord()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the session file, got %d entries", len(entries))
	}
}

func TestDefaultSessionPath(t *testing.T) {
	if p := DefaultSessionPath(); filepath.Base(p) != "session.enc" {
		t.Errorf("DefaultSessionPath = %q", p)
	}
}
