// internal/auth/session_test.go
package auth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSeatTokenRoundTrip(t *testing.T) {
	Init()

	token, err := CreateSeatToken("alice", "m-1234")
	if err != nil {
		t.Fatalf("create seat token: %v", err)
	}

	player, matchID, err := AuthenticateSeatToken(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if player != "alice" || matchID != "m-1234" {
		t.Fatalf("expected alice/m-1234, got %s/%s", player, matchID)
	}
}

func TestSeatTokenRejectsGarbage(t *testing.T) {
	Init()

	if _, _, err := AuthenticateSeatToken("not.a.token"); err == nil {
		t.Fatal("garbage must not authenticate")
	}
	if _, _, err := AuthenticateSeatToken(""); err == nil {
		t.Fatal("an empty token must not authenticate")
	}
}

func TestSeatTokenTamperDetected(t *testing.T) {
	Init()

	token, err := CreateSeatToken("alice", "m-1")
	if err != nil {
		t.Fatalf("create seat token: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three-part jwt, got %d parts", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, _, err := AuthenticateSeatToken(tampered); err == nil {
		t.Fatal("a tampered signature must not authenticate")
	}
}

func TestSeatTokenRejectsWrongAlgorithm(t *testing.T) {
	Init()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "mid": "m-1"})
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := AuthenticateSeatToken(signed); err == nil {
		t.Fatal("tokens not signed with ed25519 must be rejected")
	}
}

func TestInitFromSeedSurvivesRestart(t *testing.T) {
	t.Setenv("AUTH_PRIVATE_KEY", strings.Repeat("ab", 32))
	Init()

	token, err := CreateSeatToken("alice", "m-1")
	if err != nil {
		t.Fatalf("create seat token: %v", err)
	}

	// A second Init with the same seed stands in for a process restart.
	Init()
	if _, _, err := AuthenticateSeatToken(token); err != nil {
		t.Fatalf("token must survive a restart with the same key: %v", err)
	}
}

func TestTokenExpireConfig(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	Init()
	if TOKEN_EXPIRE_TIME_SEC != 0 {
		t.Fatalf("expected no expiry, got %d", TOKEN_EXPIRE_TIME_SEC)
	}

	t.Setenv("TOKEN_EXPIRE_TIME", "90m")
	Init()
	if TOKEN_EXPIRE_TIME_SEC != 5400 {
		t.Fatalf("expected 5400s, got %d", TOKEN_EXPIRE_TIME_SEC)
	}
}
