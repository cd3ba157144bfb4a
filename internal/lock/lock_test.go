package lock

import (
	"errors"
	"testing"
)

func TestSetAndVerify(t *testing.T) {
	passwords := []string{
		"secret",
		"s",
		"correct horse battery staple",
		"päss wörd with ünicode",
		"!@#$%^&*()_+-=[]{}|;':\",./<>?",
	}

	for _, pw := range passwords {
		hash, err := Set(pw)
		if err != nil {
			t.Fatalf("Set(%q): %v", pw, err)
		}
		if hash == "" || hash == pw {
			t.Fatalf("Set(%q) returned %q, want a non-empty hash distinct from the input", pw, hash)
		}
		if err := Verify(pw, hash); err != nil {
			t.Fatalf("Verify(%q) against its own hash: %v", pw, err)
		}
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	hash, err := Set("secret")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	for _, wrong := range []string{"wrong", "Secret", "secret ", ""} {
		if err := Verify(wrong, hash); !errors.Is(err, ErrPasswordMismatch) {
			t.Fatalf("Verify(%q): error = %v, want ErrPasswordMismatch", wrong, err)
		}
	}
}

func TestVerify_NoLockConfigured(t *testing.T) {
	if err := Verify("anything", ""); !errors.Is(err, ErrNoLockConfigured) {
		t.Fatalf("Verify with empty hash: error = %v, want ErrNoLockConfigured", err)
	}
}

func TestSet_DistinctHashesForSamePassword(t *testing.T) {
	h1, err := Set("secret")
	if err != nil {
		t.Fatalf("first Set: %v", err)
	}
	h2, err := Set("secret")
	if err != nil {
		t.Fatalf("second Set: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected salted hashes to differ for the same password")
	}
}
