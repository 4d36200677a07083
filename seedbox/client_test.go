package seedbox

import (
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

func signedTestToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return tok
}

func TestTokenExpiredFalseForFutureExp(t *testing.T) {
	tok := signedTestToken(t, time.Now().Add(time.Hour))
	if tokenExpired(tok) {
		t.Error("a token expiring an hour from now must not be reported expired")
	}
}

func TestTokenExpiredTrueForPastExp(t *testing.T) {
	tok := signedTestToken(t, time.Now().Add(-time.Hour))
	if !tokenExpired(tok) {
		t.Error("a token that expired an hour ago must be reported expired")
	}
}

func TestTokenExpiredFalseForOpaqueToken(t *testing.T) {
	if tokenExpired("not-a-jwt-at-all") {
		t.Error("a non-JWT opaque token should be left to the 401 refresh path, not forced expired")
	}
}
