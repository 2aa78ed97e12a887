package token

import "testing"

func TestNewProducesDistinctPairs(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatal(err)
	}
	b, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if a.Secret == b.Secret {
		t.Error("expected two calls to New to mint different secrets")
	}
	if a.ConnectionToken == b.ConnectionToken {
		t.Error("expected two calls to New to mint different connection tokens")
	}
}

func TestConnectionTokenStringRoundTrip(t *testing.T) {
	pair, err := New()
	if err != nil {
		t.Fatal(err)
	}

	encoded := pair.ConnectionToken.String()
	decoded, err := ParseConnectionTokenString(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != pair.ConnectionToken {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, pair.ConnectionToken)
	}
}

func TestSecretStringRoundTrip(t *testing.T) {
	pair, err := New()
	if err != nil {
		t.Fatal(err)
	}

	encoded := pair.Secret.String()
	decoded, err := ParseSecret(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != pair.Secret {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, pair.Secret)
	}
}

func TestParseConnectionTokenRejectsWrongLength(t *testing.T) {
	if _, err := ParseConnectionToken([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a short body")
	}
}

func TestParseConnectionTokenStringRejectsGarbage(t *testing.T) {
	if _, err := ParseConnectionTokenString("not base58!!"); err == nil {
		t.Error("expected an error for non-base58 input")
	}
}
