package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

type SessionKey [16]byte

func NewSessionKey() (SessionKey, error) {
	var key SessionKey
	_, err := rand.Read(key[:])
	return key, err
}

func (k SessionKey) Bytes() []byte {
	return k[:]
}

func (k SessionKey) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(k[:])
}

func ParseSessionKey(key string) (SessionKey, error) {
	var k SessionKey

	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return k, err
	}
	if len(raw) != len(k) {
		return k, errors.New("invalid session key size")
	}

	copy(k[:], raw)
	return k, nil
}
