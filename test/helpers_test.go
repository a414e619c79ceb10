//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/munihall/hallpass/session"
)

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "hp", false, false, 0)

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(municipalityID, actorID, key string) *session.Session {
	now := time.Now()

	return &session.Session{
		Key:            key,
		ActorID:        actorID,
		MunicipalityID: municipalityID,
		Staff:          true,
		Credential:     "cred-" + key,
		SchemaVersion:  session.CurrentSchemaVersion,
		CreatedAt:      now.Unix(),
		ExpiresAt:      now.Add(time.Hour).Unix(),
	}
}
