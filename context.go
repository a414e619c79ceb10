package hallpass

import "context"

type sessionKeyContextKey struct{}
type credentialContextKey struct{}
type clientIPContextKey struct{}
type referrerContextKey struct{}

// WithSessionKey attaches the caller's session cookie value to ctx. The
// Engine resolves the live session from it and uses it as the navigation
// scope: a new Resolve with the same key supersedes the previous one.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyContextKey{}, key)
}

// WithCredential attaches a bearer credential to ctx. When no live
// session exists and session restore is enabled, the Engine verifies
// this credential and restores a session from it.
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialContextKey{}, credential)
}

// WithClientIP attaches the caller's IP address to ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithReferrer attaches the origin URL of the navigation to ctx. It is
// recorded in audit metadata and never interpreted.
func WithReferrer(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, referrerContextKey{}, url)
}

// SessionKeyFromContext returns the session key attached with
// [WithSessionKey], or "" when the context carries none. Custom
// [SessionStore] implementations read the caller's key through this.
func SessionKeyFromContext(ctx context.Context) string {
	return sessionKeyFromContext(ctx)
}

// CredentialFromContext returns the bearer credential attached with
// [WithCredential], or "" when the context carries none.
func CredentialFromContext(ctx context.Context) string {
	return credentialFromContext(ctx)
}

func sessionKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	key, _ := ctx.Value(sessionKeyContextKey{}).(string)
	return key
}

func credentialFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	credential, _ := ctx.Value(credentialContextKey{}).(string)
	return credential
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func referrerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	url, _ := ctx.Value(referrerContextKey{}).(string)
	return url
}
