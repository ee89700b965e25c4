package mirror_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndsregistry/internal/cases"
	"ndsregistry/internal/domain"
	"ndsregistry/internal/mirror"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/circuit"
)

// fakeMessenger models a destination whose threads really enforce the lock
// flag: posting into a locked thread comes back as ErrThreadLocked.
type fakeMessenger struct {
	mu      sync.Mutex
	locked  map[string]bool
	posts   map[string][]string
	ops     []string
	postErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		locked: make(map[string]bool),
		posts:  make(map[string][]string),
	}
}

func (f *fakeMessenger) CreateThread(_ context.Context, _ string, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := fmt.Sprintf("thread-%d", len(f.posts)+1)
	f.posts[ref] = []string{content}
	f.ops = append(f.ops, "create "+ref)
	return ref, nil
}

func (f *fakeMessenger) Post(_ context.Context, threadRef, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[threadRef] {
		f.ops = append(f.ops, "post-rejected "+threadRef)
		return mirror.ErrThreadLocked
	}
	if f.postErr != nil {
		f.ops = append(f.ops, "post-failed "+threadRef)
		return f.postErr
	}
	f.posts[threadRef] = append(f.posts[threadRef], content)
	f.ops = append(f.ops, "post "+threadRef)
	return nil
}

func (f *fakeMessenger) SetLocked(_ context.Context, threadRef string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked[threadRef] = locked
	if locked {
		f.ops = append(f.ops, "lock "+threadRef)
	} else {
		f.ops = append(f.ops, "unlock "+threadRef)
	}
	return nil
}

func (f *fakeMessenger) isLocked(threadRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked[threadRef]
}

func newSync(t *testing.T, m mirror.Messenger, opts ...mirror.SyncOption) *mirror.Synchronizer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mirror.NewSynchronizer(m, log, opts...)
}

func sampleDetails() *cases.Details {
	return &cases.Details{
		Case: cases.Case{
			ID:       1,
			Type:     domain.CaseTypeRIndividual,
			Platform: domain.PlatformDiscord,
			Reason:   "spam",
			Status:   domain.StatusOpen,
		},
		Identifier: "alice#123",
	}
}

func TestBootstrapCreatesLockedThread(t *testing.T) {
	fake := newFakeMessenger()
	s := newSync(t, fake)

	ref, err := s.Bootstrap(context.Background(), sampleDetails())
	require.NoError(t, err)
	require.NotEmpty(t, ref)
	require.True(t, fake.isLocked(ref), "thread must rest locked")
	require.Len(t, fake.posts[ref], 1)
}

func TestProjectUnlocksPostsRelocks(t *testing.T) {
	fake := newFakeMessenger()
	s := newSync(t, fake)

	ref, err := s.Bootstrap(context.Background(), sampleDetails())
	require.NoError(t, err)

	require.NoError(t, s.Project(context.Background(), 1, ref, "update one"))
	require.True(t, fake.isLocked(ref), "thread relocked after projection")
	require.Len(t, fake.posts[ref], 2)

	// The cycle is rejected-post, unlock, post, lock.
	require.Equal(t, []string{
		"create " + ref,
		"lock " + ref,
		"post-rejected " + ref,
		"unlock " + ref,
		"post " + ref,
		"lock " + ref,
	}, fake.ops)
}

func TestProjectRelocksEvenWhenPostFails(t *testing.T) {
	fake := newFakeMessenger()
	s := newSync(t, fake)

	ref, err := s.Bootstrap(context.Background(), sampleDetails())
	require.NoError(t, err)

	fake.postErr = errors.New("destination hiccup")
	err = s.Project(context.Background(), 1, ref, "update one")
	require.True(t, dErrors.HasCode(err, dErrors.CodeMirrorFailure))
	require.True(t, fake.isLocked(ref), "failed post must not leave the thread unlocked")
}

func TestProjectIntoUnlockedThreadPostsDirectly(t *testing.T) {
	fake := newFakeMessenger()
	s := newSync(t, fake)

	ref, err := fake.CreateThread(context.Background(), "t", "hello")
	require.NoError(t, err)

	require.NoError(t, s.Project(context.Background(), 1, ref, "direct"))
	require.False(t, fake.isLocked(ref), "no lock cycle means no state change")
	require.Len(t, fake.posts[ref], 2)
}

func TestProjectTimesOutWhileLockIsHeld(t *testing.T) {
	fake := newFakeMessenger()

	locker := mirror.NewShardedLocker()
	release, err := locker.Acquire(context.Background(), "case:1")
	require.NoError(t, err)
	defer release()

	s := newSync(t, fake, mirror.WithTimeout(20*time.Millisecond), mirror.WithLocker(locker))
	err = s.Project(context.Background(), 1, "thread-1", "blocked")
	require.True(t, dErrors.HasCode(err, dErrors.CodeMirrorFailure))
	require.Empty(t, fake.posts["thread-1"], "nothing reaches the destination without the lock")
}

func TestProjectSerializesSameCase(t *testing.T) {
	fake := newFakeMessenger()
	s := newSync(t, fake)

	ref, err := s.Bootstrap(context.Background(), sampleDetails())
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Project(context.Background(), 1, ref, fmt.Sprintf("update %d", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.True(t, fake.isLocked(ref))
	require.Len(t, fake.posts[ref], workers+1)

	// Every projection ran as a complete unlock/post/lock cycle with no
	// interleaving from its peers.
	ops := fake.ops[2:] // skip create+initial lock
	require.Len(t, ops, workers*4)
	for i := 0; i < workers; i++ {
		cycle := ops[i*4 : (i+1)*4]
		require.Equal(t, "post-rejected "+ref, cycle[0])
		require.Equal(t, "unlock "+ref, cycle[1])
		require.Equal(t, "post "+ref, cycle[2])
		require.Equal(t, "lock "+ref, cycle[3])
	}
}

func TestProjectFailsFastWhileCircuitOpen(t *testing.T) {
	fake := newFakeMessenger()
	fake.postErr = errors.New("destination down")
	s := newSync(t, fake, mirror.WithBreaker(circuit.New("mirror", circuit.WithFailureThreshold(2))))

	// Two real failures open the circuit; the next call through is the
	// first (and only) probe of the interval.
	for i := 0; i < 3; i++ {
		err := s.Project(context.Background(), 1, "thread-1", "x")
		require.True(t, dErrors.HasCode(err, dErrors.CodeMirrorFailure))
	}
	attempts := len(fake.ops)

	// Further calls are rejected before reaching the destination.
	err := s.Project(context.Background(), 1, "thread-1", "x")
	require.True(t, dErrors.HasCode(err, dErrors.CodeMirrorFailure))
	require.Len(t, fake.ops, attempts)
}
