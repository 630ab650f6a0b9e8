// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey are used for signing and verifying seat tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TOKEN_EXPIRE_TIME_SEC indicates how many seconds until token expiration (0 => never).
	TOKEN_EXPIRE_TIME_SEC int
)

const issuer = "clashcourse"

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets
// TOKEN_EXPIRE_TIME_SEC accordingly. Unset defaults to 12h, long enough to
// cover any realistic match plus reconnects.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" {
		TOKEN_EXPIRE_TIME_SEC = 0
		return
	}
	if duration == "" {
		duration = "12h"
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		fmt.Printf("failed to parse token expire time: %v\n", err)
		os.Exit(1)
	}
	TOKEN_EXPIRE_TIME_SEC = int(d.Seconds())
}

// Init sets up the ed25519 key pair and the token expiration. When
// AUTH_PRIVATE_KEY holds a hex-encoded seed or private key it is used, so
// tokens survive restarts; otherwise a fresh ephemeral pair is generated.
func Init() {
	if encoded := os.Getenv("AUTH_PRIVATE_KEY"); encoded != "" {
		raw, err := hex.DecodeString(encoded)
		if err != nil {
			fmt.Printf("failed to decode AUTH_PRIVATE_KEY: %v\n", err)
			os.Exit(1)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			privateKey = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			privateKey = ed25519.PrivateKey(raw)
		default:
			fmt.Printf("AUTH_PRIVATE_KEY must be %d or %d bytes of hex, got %d\n", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
			os.Exit(1)
		}
		publicKey = privateKey.Public().(ed25519.PublicKey)
		parseTokenExpireTime()
		return
	}

	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// CreateSeatToken creates a signed token binding a player name to a match.
// Presenting it proves the caller owns that seat.
func CreateSeatToken(player, matchID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": player,
		"mid": matchID,
		"iss": issuer,
	}

	if TOKEN_EXPIRE_TIME_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TOKEN_EXPIRE_TIME_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateSeatToken verifies a seat token and returns the player name
// and match id it was issued for.
func AuthenticateSeatToken(tokenString string) (player, matchID string, err error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return "", "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid jwt claims")
	}

	player, ok = claims["sub"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing sub in jwt")
	}
	matchID, ok = claims["mid"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing mid in jwt")
	}

	return player, matchID, nil
}
