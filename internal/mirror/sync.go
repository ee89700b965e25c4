package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ndsregistry/internal/cases"
	"ndsregistry/internal/platform/metrics"
	dErrors "ndsregistry/pkg/domain-errors"
	"ndsregistry/pkg/platform/circuit"
)

const defaultProjectTimeout = 10 * time.Second

// probeInterval spaces out attempts while the destination circuit is open.
const probeInterval = 15 * time.Second

var errCircuitOpen = errors.New("mirror destination circuit is open")

// Synchronizer mirrors committed registry activity into external threads.
// Threads rest locked; the synchronizer briefly unlocks for its own posts and
// always relocks, even when the post in between fails. All work here is
// best-effort and post-commit: a mirror failure never touches the registry's
// stored state, it only surfaces as a warning.
//
// Work for one case is serialized through the Locker so two concurrent
// mutations of the same case cannot interleave their unlock/post/relock
// cycles.
type Synchronizer struct {
	messenger Messenger
	locker    Locker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
	tracer    trace.Tracer

	breaker   *circuit.Breaker
	probeMu   sync.Mutex
	lastProbe time.Time
}

type SyncOption func(*Synchronizer)

func WithSyncMetrics(m *metrics.Metrics) SyncOption {
	return func(s *Synchronizer) { s.metrics = m }
}

func WithTimeout(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.timeout = d }
}

func WithLocker(l Locker) SyncOption {
	return func(s *Synchronizer) { s.locker = l }
}

// WithBreaker short-circuits projections while the destination keeps
// failing, letting occasional probes through to detect recovery.
func WithBreaker(b *circuit.Breaker) SyncOption {
	return func(s *Synchronizer) { s.breaker = b }
}

func NewSynchronizer(messenger Messenger, logger *slog.Logger, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		messenger: messenger,
		locker:    NewShardedLocker(),
		logger:    logger,
		timeout:   defaultProjectTimeout,
		tracer:    otel.Tracer("ndsregistry/mirror"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap creates the mirror thread for a newly opened case and locks it.
// The returned reference is ready to be attached to the case. The thread is
// created unlocked, so the bootstrap message needs no unlock cycle.
func (s *Synchronizer) Bootstrap(ctx context.Context, d *cases.Details) (string, error) {
	ctx, span := s.tracer.Start(ctx, "mirror.Bootstrap",
		trace.WithAttributes(attribute.Int64("case.id", d.ID)))
	defer span.End()

	if !s.admit() {
		return "", s.failure(ctx, d.ID, "circuit", errCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, caseKey(d.ID))
	if err != nil {
		return "", s.failure(ctx, d.ID, "serialize", err)
	}
	defer release()

	threadRef, err := s.messenger.CreateThread(ctx, ThreadTitle(d), RenderBootstrap(d))
	if err != nil {
		return "", s.failure(ctx, d.ID, "create", err)
	}
	if err := s.messenger.SetLocked(ctx, threadRef, true); err != nil {
		return "", s.failure(ctx, d.ID, "lock", err)
	}

	s.observe(nil)
	if s.metrics != nil {
		s.metrics.MirrorPosts.Inc()
	}
	s.logger.InfoContext(ctx, "mirror thread bootstrapped",
		"case_id", d.ID,
		"thread_ref", threadRef,
	)
	return threadRef, nil
}

// Project posts content into a case's locked thread. The first post attempt
// goes against the locked thread; on a lock rejection the thread is unlocked,
// the post retried once, and the relock is guaranteed by defer so the thread
// ends locked whether or not that retry succeeds.
func (s *Synchronizer) Project(ctx context.Context, caseID int64, threadRef, content string) error {
	ctx, span := s.tracer.Start(ctx, "mirror.Project",
		trace.WithAttributes(attribute.Int64("case.id", caseID)))
	defer span.End()

	if !s.admit() {
		return s.failure(ctx, caseID, "circuit", errCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, caseKey(caseID))
	if err != nil {
		return s.failure(ctx, caseID, "serialize", err)
	}
	defer release()

	err = s.messenger.Post(ctx, threadRef, content)
	if err == nil {
		s.observe(nil)
		if s.metrics != nil {
			s.metrics.MirrorPosts.Inc()
		}
		return nil
	}
	if !errors.Is(err, ErrThreadLocked) {
		return s.failure(ctx, caseID, "post", err)
	}

	if err := s.messenger.SetLocked(ctx, threadRef, false); err != nil {
		return s.failure(ctx, caseID, "unlock", err)
	}
	defer func() {
		// Relock must survive post failure and ctx expiry.
		relockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.messenger.SetLocked(relockCtx, threadRef, true); err != nil {
			s.logger.ErrorContext(relockCtx, "mirror thread left unlocked",
				"case_id", caseID,
				"thread_ref", threadRef,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.MirrorFailures.WithLabelValues("relock").Inc()
			}
		}
	}()
	if s.metrics != nil {
		s.metrics.MirrorUnlocks.Inc()
	}

	if err := s.messenger.Post(ctx, threadRef, content); err != nil {
		return s.failure(ctx, caseID, "post", err)
	}
	s.observe(nil)
	if s.metrics != nil {
		s.metrics.MirrorPosts.Inc()
	}
	return nil
}

func (s *Synchronizer) failure(ctx context.Context, caseID int64, kind string, err error) error {
	// Serialization timeouts and circuit fast-fails say nothing about the
	// destination's health.
	if kind != "serialize" && kind != "circuit" {
		s.observe(err)
	}
	if s.metrics != nil {
		s.metrics.MirrorFailures.WithLabelValues(kind).Inc()
	}
	s.logger.WarnContext(ctx, "mirror projection failed",
		"case_id", caseID,
		"kind", kind,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeMirrorFailure, fmt.Sprintf("mirror %s failed", kind))
}

// admit reports whether an attempt may proceed. With the circuit open, one
// probe per interval gets through; everything else fails fast.
func (s *Synchronizer) admit() bool {
	if s.breaker == nil || !s.breaker.IsOpen() {
		return true
	}
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if time.Since(s.lastProbe) >= probeInterval {
		s.lastProbe = time.Now()
		return true
	}
	return false
}

func (s *Synchronizer) observe(err error) {
	if s.breaker == nil {
		return
	}
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.Warn("mirror circuit opened", "breaker", s.breaker.Name())
		}
		return
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.Info("mirror circuit closed", "breaker", s.breaker.Name())
	}
}

func caseKey(caseID int64) string {
	return "case:" + strconv.FormatInt(caseID, 10)
}
