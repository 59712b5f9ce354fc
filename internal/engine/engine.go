// Package engine implements the conversation synchronization engine: it
// reconciles polled backend state with local optimistic edits and owns
// the selection, read-state, and new-arrival behavior of the messaging
// widget.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/overlay"
	"github.com/studyhall/tutormsg/internal/reconcile"
	"github.com/studyhall/tutormsg/internal/remote"
	"github.com/studyhall/tutormsg/internal/session"
)

// Sentinel errors for the user-facing failure modes. Poll failures are
// deliberately absent: they are logged and swallowed, never surfaced.
var (
	ErrValidation          = errors.New("message body too short")
	ErrNoSelection         = errors.New("no conversation selected")
	ErrNotEligible         = errors.New("conversation is closed for messaging")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrWidgetClosed        = errors.New("widget is not open")
)

// Options configures engine behavior.
type Options struct {
	// Role is the local participant's side of every conversation.
	Role message.Role

	// MinBodyRunes is the minimum message length after trimming
	// (default: 5).
	MinBodyRunes int

	// SupersedeWindow bounds the optimistic-send match (default: 2m).
	SupersedeWindow time.Duration

	// NearBottom is the scroll distance within which the message pane
	// follows new content (default: 150).
	NearBottom int

	// ScrollDebounce is how long after a manual scroll the pane waits
	// before following again (default: 250ms).
	ScrollDebounce time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func (o *Options) setDefaults() {
	if o.MinBodyRunes <= 0 {
		o.MinBodyRunes = 5
	}
	if o.SupersedeWindow <= 0 {
		o.SupersedeWindow = 2 * time.Minute
	}
	if o.NearBottom <= 0 {
		o.NearBottom = 150
	}
	if o.ScrollDebounce <= 0 {
		o.ScrollDebounce = 250 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Stats reports engine health for the serve surface.
type Stats struct {
	Cycles       int64     `json:"cycles"`
	FailedCycles int64     `json:"failed_cycles"`
	LastCycleAt  time.Time `json:"last_cycle_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	PendingSends int       `json:"pending_sends"`
	TotalUnread  int       `json:"total_unread"`
}

// Engine is safe for concurrent use. All view mutations happen under a
// single mutex in short synchronous steps; network calls never hold it.
type Engine struct {
	backend remote.API
	logger  *slog.Logger
	opts    Options
	rec     reconcile.Reconciler

	// cycling guarantees at most one in-flight poll cycle. A tick that
	// fires while a cycle runs is skipped entirely, not queued.
	cycling atomic.Bool

	mu          sync.Mutex
	mounted     bool
	ov          *overlay.Overlay
	track       *session.Tracker
	scroll      *session.Scroll
	vm          *reconcile.ViewModel
	grouped     map[string][]message.Message // canonical groups from the last good cycle
	eligibility map[string]bool              // last known eligibility map
	input       string
	stats       Stats
	listeners   []func()
	ackCtx      context.Context
	ackCancel   context.CancelFunc

	// wg tracks fire-and-forget read acknowledgements so tests can wait
	// for them.
	wg sync.WaitGroup
}

// New creates an engine over the given backend.
func New(backend remote.API, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		backend: backend,
		logger:  slog.Default(),
		opts:    opts,
		rec:     reconcile.Reconciler{Role: opts.Role, SupersedeWindow: opts.SupersedeWindow},
		ov:      overlay.New(),
		track:   session.NewTracker(opts.Clock),
		scroll:  session.NewScroll(opts.NearBottom, opts.ScrollDebounce),
		vm:      reconcile.EmptyViewModel(),
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// OnUpdate registers a callback invoked after every state change. The
// callback runs without the engine lock held and may call back into the
// engine.
func (e *Engine) OnUpdate(fn func()) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *Engine) notify() {
	e.mu.Lock()
	ls := slices.Clone(e.listeners)
	e.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

func (e *Engine) now() time.Time { return e.opts.Clock() }

// Open mounts the widget: it runs an initial fetch-and-reconcile cycle
// and auto-selects the first conversation when nothing is selected.
func (e *Engine) Open(ctx context.Context) {
	e.mu.Lock()
	if e.mounted {
		e.mu.Unlock()
		return
	}
	e.mounted = true
	e.ackCtx, e.ackCancel = context.WithCancel(context.Background())
	e.track.SetOpen(true)
	e.scroll.Reset()
	e.mu.Unlock()

	if err := e.RunCycle(ctx); err != nil {
		e.logger.Warn("initial fetch failed", "error", err)
	}

	e.mu.Lock()
	if e.mounted && e.track.SelectedKey() == "" {
		if keys := e.vm.Keys(); len(keys) > 0 {
			e.track.Select(keys[0])
			e.scroll.Reset()
			e.syncReadLocked()
		}
	}
	e.mu.Unlock()
	e.notify()
}

// Close unmounts the widget. Any remote result that lands afterwards is
// discarded without mutating state.
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return
	}
	e.mounted = false
	e.track.SetOpen(false)
	if e.ackCancel != nil {
		e.ackCancel()
	}
	e.mu.Unlock()
	e.notify()
}

// RunCycle performs one fetch-and-reconcile cycle. A fetch failure
// leaves the previous view model untouched: bad data never replaces
// good data. If a cycle is already running the call is a no-op.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.cycling.CompareAndSwap(false, true) {
		return nil
	}
	defer e.cycling.Store(false)

	msgs, err := e.backend.FetchMessages(ctx)
	if err != nil {
		e.recordCycleError(err)
		e.logger.Warn("poll failed, keeping previous view", "error", err)
		return err
	}

	msgs = message.Normalize(msgs, e.opts.Role)
	msgs = reconcile.FilterExpired(msgs, e.now())
	keys := reconcile.Keys(msgs)

	eligible, eligErr := e.backend.GetEligibility(ctx, keys)

	e.mu.Lock()
	if eligErr != nil {
		// Fall back to the last known map; with none to fall back on the
		// cycle aborts and the previous view survives.
		if e.eligibility == nil {
			e.mu.Unlock()
			e.recordCycleError(eligErr)
			e.logger.Warn("eligibility query failed, keeping previous view", "error", eligErr)
			return eligErr
		}
		eligible = e.eligibility
		e.logger.Warn("eligibility query failed, reusing last known map", "error", eligErr)
	} else {
		e.eligibility = eligible
	}

	if !e.mounted {
		// Stale completion racing a Close.
		e.mu.Unlock()
		return nil
	}

	e.grouped = reconcile.Group(msgs, eligible)
	// Supersede runs exactly here, against fresh data only. A rebuild
	// over the cached groups must never consume a pending entry that was
	// inserted after this poll's snapshot.
	e.rec.Supersede(e.grouped, e.ov)
	e.compactOverlayLocked()
	e.rebuildLocked()

	if e.track.Validate(e.vm) {
		e.logger.Info("selection reset, conversation no longer available")
	}
	e.syncReadLocked()
	e.detectArrivalsLocked()

	e.stats.Cycles++
	e.stats.LastCycleAt = e.now()
	e.stats.LastError = ""
	e.mu.Unlock()
	e.notify()
	return nil
}

func (e *Engine) recordCycleError(err error) {
	e.mu.Lock()
	e.stats.FailedCycles++
	e.stats.LastError = err.Error()
	e.mu.Unlock()
}

// rebuildLocked re-runs reconciliation over the cached canonical groups,
// picking up overlay changes without a network fetch.
func (e *Engine) rebuildLocked() {
	e.vm = e.rec.Reconcile(e.grouped, e.ov)
}

// compactOverlayLocked drops overlay state the fresh groups have made
// irrelevant: locally-read overrides the backend has confirmed, and
// pending sends whose conversation vanished from the grouped output.
func (e *Engine) compactOverlayLocked() {
	confirmed := make(map[string]bool)
	for _, msgs := range e.grouped {
		for _, m := range msgs {
			if m.Read {
				confirmed[m.ID] = true
			}
		}
	}
	e.ov.CompactRead(func(id string) bool { return confirmed[id] })
	e.ov.CompactPending(func(key string) bool {
		_, ok := e.grouped[key]
		return ok
	})
}

// syncReadLocked promotes unread incoming messages of the newly opened
// conversation to read: optimistically first, then one backend
// acknowledgement per message. Runs once per selection.
func (e *Engine) syncReadLocked() {
	if !e.track.NeedsReadSync() {
		return
	}
	key := e.track.SelectedKey()
	ids := session.UnreadIncoming(e.vm.Messages(key), e.opts.Role, e.ov.IsRead)
	e.track.MarkReadSynced()
	if len(ids) == 0 {
		return
	}

	// Optimistic effect before any network call: the unread badges drop
	// immediately.
	e.ov.MarkRead(ids...)
	e.rebuildLocked()
	e.track.RemoveArrivals(ids)
	e.ackRead(ids)
}

// ackConcurrency bounds parallel mark-read calls per batch.
const ackConcurrency = 4

// ackRead issues one mark-read call per message, a few in flight at a
// time. Failures are logged and never rolled back; the next poll cycle
// reconciles truth either way.
func (e *Engine) ackRead(ids []string) {
	ctx := e.ackCtx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		sem := make(chan struct{}, ackConcurrency)
		g, ctx := errgroup.WithContext(ctx)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return nil
				}
				if err := e.backend.MarkRead(ctx, id); err != nil {
					e.logger.Warn("mark-read not acknowledged", "id", id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// detectArrivalsLocked records incoming messages that arrived after the
// selected conversation was opened and raises the banner.
func (e *Engine) detectArrivalsLocked() {
	key := e.track.SelectedKey()
	if key == "" {
		return
	}
	e.track.DetectArrivals(e.vm.Messages(key), e.opts.Role)
}

// SelectConversation opens a conversation. The key must be present in
// the current view.
func (e *Engine) SelectConversation(key string) error {
	e.mu.Lock()
	if !e.mounted {
		e.mu.Unlock()
		return ErrWidgetClosed
	}
	if !e.vm.Has(key) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}
	e.track.Select(key)
	e.scroll.Reset()
	e.syncReadLocked()
	e.mu.Unlock()
	e.notify()
	return nil
}

// DismissBanner hides the new-message banner.
func (e *Engine) DismissBanner() {
	e.mu.Lock()
	e.track.DismissBanner()
	e.mu.Unlock()
	e.notify()
}

// OnScroll records the message pane's distance from the bottom. Reaching
// the near-bottom threshold dismisses the banner implicitly.
func (e *Engine) OnScroll(fromBottom int) {
	e.mu.Lock()
	e.scroll.Observe(fromBottom, e.now())
	dismissed := false
	if e.scroll.NearBottom() && e.track.BannerVisible() {
		e.track.DismissBanner()
		dismissed = true
	}
	e.mu.Unlock()
	if dismissed {
		e.notify()
	}
}

// ShouldAutoScroll reports whether the message pane should snap to the
// bottom on the next content update.
func (e *Engine) ShouldAutoScroll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scroll.ShouldFollow(e.now())
}

// ViewModel returns the current reconciled view. Callers must treat it
// as immutable.
func (e *Engine) ViewModel() *reconcile.ViewModel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm
}

// Selection returns the current selection state.
func (e *Engine) Selection() session.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.track.Snapshot()
}

// Input returns the current draft text.
func (e *Engine) Input() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input
}

// SetInput replaces the draft text.
func (e *Engine) SetInput(text string) {
	e.mu.Lock()
	e.input = text
	e.mu.Unlock()
}

// Stats returns engine health counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.PendingSends = e.ov.PendingCount()
	s.TotalUnread = e.vm.TotalUnread
	return s
}
