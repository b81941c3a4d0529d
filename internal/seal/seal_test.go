package seal

import (
	"bytes"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	k, err := New("local-secret")
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	sealed, err := k.Seal([]byte("bearer-token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("bearer-token")) {
		t.Fatal("token visible in sealed bytes")
	}
	opened, err := k.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != "bearer-token" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestNilKeeperPassesThrough(t *testing.T) {
	k, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if k != nil {
		t.Fatal("empty passphrase should yield nil keeper")
	}
	sealed, _ := k.Seal([]byte("plain"))
	if string(sealed) != "plain" {
		t.Fatal("nil keeper must pass data through")
	}
	opened, _ := k.Open(sealed)
	if string(opened) != "plain" {
		t.Fatal("nil keeper must pass data through")
	}
}

func TestOpenRejectsTamperedData(t *testing.T) {
	k, _ := New("local-secret")
	sealed, _ := k.Seal([]byte("bearer-token"))
	sealed[len(sealed)-1] ^= 0xff
	if _, err := k.Open(sealed); err == nil {
		t.Fatal("tampered ciphertext must not open")
	}
	if _, err := k.Open([]byte("short")); err != ErrCiphertext {
		t.Fatalf("expected ErrCiphertext, got %v", err)
	}
}

func TestWrongPassphraseFails(t *testing.T) {
	k1, _ := New("secret-one")
	k2, _ := New("secret-two")
	sealed, _ := k1.Seal([]byte("bearer-token"))
	if _, err := k2.Open(sealed); err == nil {
		t.Fatal("wrong key must not open")
	}
}
