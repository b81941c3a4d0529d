package store

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sponsorlink/internal/seal"
)

func testToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestCredStoreRoundTrip(t *testing.T) {
	keeper, err := seal.New("local-secret")
	if err != nil {
		t.Fatalf("keeper: %v", err)
	}
	s, err := OpenCredStore(filepath.Join(t.TempDir(), "creds.db"), keeper)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Save("header.payload.sig-not-a-jwt-token", "athlete-1", "athlete"); err != nil {
		t.Fatalf("save: %v", err)
	}
	creds, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if creds.Token != "header.payload.sig-not-a-jwt-token" || creds.UserID != "athlete-1" || creds.Role != "athlete" {
		t.Fatalf("unexpected creds: %+v", creds)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	creds, err = s.Load()
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if creds.Valid() {
		t.Fatalf("expected zero credentials after clear, got %+v", creds)
	}
}

func TestCredStoreDerivesIdentityFromToken(t *testing.T) {
	token := testToken(t, jwt.MapClaims{
		"userId": "brand-7",
		"role":   "brand",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	s, err := OpenCredStore(filepath.Join(t.TempDir(), "creds.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Save(token, "", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	creds, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if creds.UserID != "brand-7" || creds.Role != "brand" {
		t.Fatalf("identity not derived: %+v", creds)
	}
}

func TestIdentityFromTokenFallsBackToSubject(t *testing.T) {
	token := testToken(t, jwt.MapClaims{"sub": "athlete-9"})
	userID, role, err := IdentityFromToken(token)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if userID != "athlete-9" || role != "" {
		t.Fatalf("got %q/%q", userID, role)
	}
	if _, _, err := IdentityFromToken("garbage"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestArtifactStoreSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenArtifactStore(filepath.Join(dir, "artifacts.db"), filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	payload := []byte("%PDF-1.4 signed")
	record, err := s.Save("contract_signed_1.pdf", "athlete-1", "application/pdf", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if record.Size != int64(len(payload)) || record.Name != "contract_signed_1.pdf" {
		t.Fatalf("unexpected record: %+v", record)
	}

	got, rc, err := s.Open(record.ID)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, payload) {
		t.Fatal("stored bytes differ")
	}
	if got.Owner != "athlete-1" {
		t.Fatalf("owner = %q", got.Owner)
	}

	if _, _, err := s.Open("missing"); err != ErrArtifactNotFound {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestArtifactStoreListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenArtifactStore(filepath.Join(dir, "artifacts.db"), filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if _, err := s.Save(name, "u", "application/pdf", bytes.NewReader([]byte(name))); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	records, err := s.List(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].Name != "c.pdf" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestArtifactStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenArtifactStore(filepath.Join(dir, "artifacts.db"), filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	record, err := s.Save("../../etc/passwd", "u", "", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if record.Name != "passwd" {
		t.Fatalf("name not sanitized: %q", record.Name)
	}
}
