package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "user-1", 5)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	sub, err := ParseAccessToken("secret", tok.Token)
	if err != nil || sub != "user-1" {
		t.Fatalf("ParseAccessToken = %q, %v", sub, err)
	}
	if _, err := ParseAccessToken("other", tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret err = %v", err)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	expired, _ := NewAccessToken("secret", "user-1", -1)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte("secret"))
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, raw := range map[string]string{
		"expired":  expired.Token,
		"no exp":   noExp,
		"alg none": noneAlg,
		"garbage":  "a.b.c",
	} {
		if _, err := ParseAccessToken("secret", raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRefreshToken(7)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("raw tokens %q %q", a.Raw, b.Raw)
	}
	h := HashRefreshRaw(a.Raw)
	if len(h) != 64 || h == a.Raw || strings.ToLower(h) != h {
		t.Fatalf("hash = %q", h)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", MinPasswordCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "hunter22") || VerifyPassword(hash, "hunter23") {
		t.Fatal("VerifyPassword mismatch")
	}
}
