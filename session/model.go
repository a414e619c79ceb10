package session

// Session defines a public type used by hallpass APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	Key            string
	ActorID        string
	MunicipalityID string

	Staff bool

	// Credential is the bearer credential presented when the session
	// was established. It is replayed to backend services on the
	// actor's behalf and lets an expired cookie session be restored
	// without a fresh sign-in.
	Credential string

	// SchemaVersion records the binary format version the session was
	// decoded from. The store rewrites stale blobs on read.
	SchemaVersion uint8

	CreatedAt int64
	ExpiresAt int64
}
