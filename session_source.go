package hallpass

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/munihall/hallpass/credential"
	"github.com/munihall/hallpass/internal"
	"github.com/munihall/hallpass/session"
)

// sessionSource is the built-in [SessionStore]. It resolves the live
// session named by the request context and, when restore is enabled,
// rebuilds a missing session from a verified bearer credential.
type sessionSource struct {
	store       *session.Store
	credentials *credential.Manager
	lifetime    time.Duration
	restore     bool

	// restored runs after a session is rebuilt from a credential,
	// before the resolve flow sees it.
	restored func(ctx context.Context, sess *session.Session)
}

func (s *sessionSource) Current(ctx context.Context) (*session.Session, error) {
	key := sessionKeyFromContext(ctx)
	if key != "" {
		sess, err := s.store.Get(ctx, key, s.lifetime)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, redis.Nil) {
			if errors.Is(err, session.ErrRedisUnavailable) {
				log.Print("hallpass: session store unavailable")
			}
			return nil, err
		}
		// Missing or past its absolute lifetime. A valid credential
		// can still restore a fresh session below.
	}

	return s.restoreFromCredential(ctx)
}

func (s *sessionSource) restoreFromCredential(ctx context.Context) (*session.Session, error) {
	if !s.restore || s.credentials == nil {
		return nil, ErrNoSession
	}

	token := credentialFromContext(ctx)
	if token == "" {
		return nil, ErrNoSession
	}

	claims, err := s.credentials.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	key, err := internal.NewSessionKey()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		Key:            key.String(),
		ActorID:        claims.UID,
		MunicipalityID: claims.Municipality,
		Staff:          claims.Staff,
		Credential:     token,
		SchemaVersion:  session.CurrentSchemaVersion,
		CreatedAt:      now.Unix(),
		ExpiresAt:      now.Add(s.lifetime).Unix(),
	}

	if err := s.store.Save(ctx, sess, s.lifetime); err != nil {
		return nil, err
	}

	if s.restored != nil {
		s.restored(ctx, sess)
	}

	return sess, nil
}

func (s *sessionSource) Invalidate(ctx context.Context, key string) (bool, error) {
	return s.store.Invalidate(ctx, key)
}
