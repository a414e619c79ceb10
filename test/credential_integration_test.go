//go:build integration
// +build integration

package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/munihall/hallpass/credential"
)

func TestCredentialIntegrationHardeningChecks(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	manager, err := credential.NewManager(credential.Config{
		TTL:        time.Minute,
		Method:     credential.MethodEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		Issuer:     "hallpass",
		Audience:   "munihall-admin",
		Leeway:     30 * time.Second,
		KeyID:      "k1",
		VerifyKeys: map[string][]byte{"k1": pub},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := manager.Mint("u-1", "mun-1", true)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify valid credential failed: %v", err)
	}
	if claims.UID != "u-1" || claims.Municipality != "mun-1" || !claims.Staff {
		t.Fatalf("claims round-trip mismatch: %+v", claims)
	}

	sign := func(mutate func(*credential.Claims, *gjwt.Token)) string {
		t.Helper()
		c := credential.Claims{
			UID:          "u-1",
			Municipality: "mun-1",
			RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "hallpass",
				Audience:  gjwt.ClaimStrings{"munihall-admin"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
				IssuedAt:  gjwt.NewNumericDate(time.Now()),
			},
		}
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, &c)
		tok.Header["kid"] = "k1"
		if mutate != nil {
			mutate(&c, tok)
		}
		signed, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}
		return signed
	}

	if _, err := manager.Verify(sign(nil)); err != nil {
		t.Fatalf("Verify hand-built valid credential failed: %v", err)
	}

	if _, err := manager.Verify(sign(func(_ *credential.Claims, tok *gjwt.Token) {
		tok.Header["kid"] = "unknown"
	})); err == nil {
		t.Fatal("expected unknown kid credential to fail")
	}

	if _, err := manager.Verify(sign(func(_ *credential.Claims, tok *gjwt.Token) {
		delete(tok.Header, "kid")
	})); err == nil {
		t.Fatal("expected credential without kid to fail")
	}

	if _, err := manager.Verify(sign(func(c *credential.Claims, _ *gjwt.Token) {
		c.UID = ""
	})); err == nil {
		t.Fatal("expected credential without uid claim to fail")
	}

	if _, err := manager.Verify(sign(func(c *credential.Claims, _ *gjwt.Token) {
		c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-time.Hour))
	})); err == nil {
		t.Fatal("expected expired credential to fail")
	}

	if _, err := manager.Verify(sign(func(c *credential.Claims, _ *gjwt.Token) {
		c.Issuer = "someone-else"
	})); err == nil {
		t.Fatal("expected wrong-issuer credential to fail")
	}

	// Signed by a key the manager has never seen.
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	forged := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, &credential.Claims{
		UID:          "u-1",
		Municipality: "mun-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "hallpass",
			Audience:  gjwt.ClaimStrings{"munihall-admin"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	forged.Header["kid"] = "k1"
	signedForged, err := forged.SignedString(otherPriv)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := manager.Verify(signedForged); err == nil {
		t.Fatal("expected foreign-key signature to fail")
	}

	// HS256 credential claiming the public key as its secret must be
	// rejected by method pinning, not just signature checks.
	confused := gjwt.NewWithClaims(gjwt.SigningMethodHS256, &credential.Claims{
		UID:          "u-1",
		Municipality: "mun-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "hallpass",
			Audience:  gjwt.ClaimStrings{"munihall-admin"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	confused.Header["kid"] = "k1"
	signedConfused, err := confused.SignedString([]byte(pub))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := manager.Verify(signedConfused); err == nil {
		t.Fatal("expected algorithm-confused credential to fail")
	}
}
