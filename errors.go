package hallpass

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the navigation engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnknownRoute is an exported constant or variable used by the navigation engine.
	ErrUnknownRoute = errors.New("unknown route")
	// ErrNoSession is an exported constant or variable used by the navigation engine.
	ErrNoSession = errors.New("no active session")
	// ErrCredentialRejected is an exported constant or variable used by the navigation engine.
	ErrCredentialRejected = errors.New("credential rejected")
)
