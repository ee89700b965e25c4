package mirror

import "context"

// ErrThreadLocked reports that the destination rejected a post because the
// thread is locked. It is the only post failure the synchronizer recovers
// from; everything else surfaces as a mirror failure.
var ErrThreadLocked = errThreadLocked{}

type errThreadLocked struct{}

func (errThreadLocked) Error() string { return "mirror: thread is locked" }

// Messenger is the mirror destination. Implementations translate their
// platform's failure modes: a post rejected due to thread lock must come back
// as ErrThreadLocked so the synchronizer can unlock and retry.
type Messenger interface {
	// CreateThread opens a new thread with an initial message and returns
	// its opaque reference.
	CreateThread(ctx context.Context, title, content string) (string, error)

	// Post appends a message to the thread.
	Post(ctx context.Context, threadRef, content string) error

	// SetLocked locks or unlocks the thread.
	SetLocked(ctx context.Context, threadRef string, locked bool) error
}
