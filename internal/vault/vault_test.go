package vault

import (
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v := New("test-passphrase")

	sealed, err := v.Seal("sk-ant-example-key")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.Contains(sealed, ".") {
		t.Fatalf("sealed value missing separator: %q", sealed)
	}

	opened, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "sk-ant-example-key" {
		t.Fatalf("got %q, want original key", opened)
	}
}

func TestWrongPassphrase(t *testing.T) {
	v1 := New("correct-passphrase")
	v2 := New("wrong-passphrase")

	sealed, err := v1.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := v2.Open(sealed); err == nil {
		t.Fatal("expected error opening with wrong passphrase")
	}
}

func TestDifferentPassphrasesDifferentKeys(t *testing.T) {
	v1 := New("passphrase-one")
	v2 := New("passphrase-two")

	if v1.key == v2.key {
		t.Fatal("different passphrases produced the same key")
	}
}

func TestMalformedSealedValue(t *testing.T) {
	v := New("test")

	for _, sealed := range []string{"", "no-separator", "!!!.!!!", "YWJj."} {
		if _, err := v.Open(sealed); err == nil {
			t.Errorf("Open(%q): expected error", sealed)
		}
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	v := New("test")

	a, err := v.Seal("same input")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := v.Seal("same input")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Fatal("two seals of the same input produced identical output")
	}
}
