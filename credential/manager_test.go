package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestMintVerifyRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:        time.Minute,
		Method:     MethodEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
		Issuer:     "hallpass",
		Audience:   "admin",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Mint("u-17", "oakdale", true)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != "u-17" || claims.Municipality != "oakdale" || !claims.Staff {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestMintRejectsEmptyIdentity(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, Method: MethodEd25519, PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := m.Mint("", "oakdale", false); err == nil {
		t.Fatal("expected empty uid to fail")
	}
	if _, err := m.Mint("u-17", "", false); err == nil {
		t.Fatal("expected empty municipality to fail")
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, Method: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestVerifyIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:        time.Minute,
		Method:     MethodEd25519,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		Issuer:     "hallpass",
		Audience:   "admin",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Mint("u", "oakdale", false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected valid credential to parse: %v", err)
	}

	wrongIssuer := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badIssuerTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer)
	badIssuer, _ := badIssuerTok.SignedString(priv)
	if _, err := m.Verify(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "hallpass",
		Audience:  gjwt.ClaimStrings{"resident-portal"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badAudienceTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience)
	badAudience, _ := badAudienceTok.SignedString(priv)
	if _, err := m.Verify(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	expWithinLeeway := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "hallpass",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	withinTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expWithinLeeway)
	within, _ := withinTok.SignedString(priv)
	if _, err := m.Verify(within); err != nil {
		t.Fatalf("expected credential within leeway to pass: %v", err)
	}

	expired := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "hallpass",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}}
	expiredTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expired)
	expiredSigned, _ := expiredTok.SignedString(priv)
	if _, err := m.Verify(expiredSigned); err == nil {
		t.Fatal("expected expired credential to fail")
	}
}

func TestVerifyRejectsMissingIdentityClaims(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, Method: MethodEd25519, PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	anonymous := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, anonymous)
	token, _ := tok.SignedString(priv)
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected credential without uid to fail")
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:        time.Minute,
		Method:     MethodEd25519,
		PrivateKey: priv1,
		PublicKey:  pub1,
		KeyID:      "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u", Municipality: "oakdale", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.Verify(good); err != nil {
		t.Fatalf("expected known kid credential to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, Method: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Verify(good); err == nil {
		t.Fatal("expected verify failure with mismatched key set")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, priv := newEdKeys(t)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero ttl", cfg: Config{Method: MethodEd25519, PublicKey: pub}},
		{name: "excess leeway", cfg: Config{TTL: time.Minute, Method: MethodEd25519, PublicKey: pub, Leeway: 3 * time.Minute}},
		{name: "hs256 without key", cfg: Config{TTL: time.Minute, Method: MethodHS256}},
		{name: "ed25519 without keys", cfg: Config{TTL: time.Minute, Method: MethodEd25519}},
		{name: "unsupported method", cfg: Config{TTL: time.Minute, Method: Method("rs256"), PrivateKey: priv}},
		{name: "empty kid in verify keys", cfg: Config{TTL: time.Minute, Method: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}}},
		{name: "keyid missing from verify keys", cfg: Config{TTL: time.Minute, Method: MethodEd25519, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, Method: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Mint("u-3", "brookfield", false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Staff {
		t.Fatal("staff flag should be false")
	}
}
