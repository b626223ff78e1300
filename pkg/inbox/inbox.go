// Package inbox is the client-side cache of a user's notifications: an
// ordered, persisted history with pagination, an unread counter kept in
// step with the server, optimistic read-state changes and toasts for
// live pushes.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/notifyclient"
)

const (
	DefaultPageSize  = 20
	DefaultInitDelay = time.Second

	localIDPrefix = "local:"
)

var (
	ErrUnknownEntry = errors.New("inbox: unknown entry")
	ErrInitFailed   = errors.New("inbox: initialization failed")
)

// API is the server surface the inbox syncs with; *notifyclient.Client
// satisfies it.
type API interface {
	List(ctx context.Context, page, limit int) (*notifyclient.Page, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	Stream(ctx context.Context, userID int64, handler notifyclient.Handler) error
}

var _ API = (*notifyclient.Client)(nil)

// Entry is a cached notification. LocalID embeds the server id.
type Entry struct {
	LocalID string `json:"local_id"`
	notifyclient.Notification
}

func LocalID(id uuid.UUID) string {
	return localIDPrefix + id.String()
}

func serverID(localID string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(localID, localIDPrefix))
}

// Session is the authenticated identity the inbox belongs to.
type Session struct {
	UserID int64
}

type Options struct {
	PageSize  int
	InitDelay time.Duration
	// HistoryKV persists the history; defaults to a MemoryKV.
	HistoryKV       KV
	HistoryCapacity int
	MaxToasts       int
	Logger          *zap.Logger
	// OnChange is called after every state change.
	OnChange func(State)
}

// State is a snapshot of the inbox.
type State struct {
	Entries     []Entry
	Unread      int
	CurrentPage int
	TotalPages  int

	rev     uint64
	history *History
}

type Inbox struct {
	api    API
	opts   Options
	kv     KV
	toasts *Toasts
	logger *zap.Logger

	mu          sync.Mutex
	userID      int64
	history     *History
	entries     []Entry
	unread      int
	currentPage int
	totalPages  int

	lifeMu  sync.Mutex
	session *Session
	ready   chan struct{}
	cancel  context.CancelFunc

	// rev orders snapshots; saves older than savedRev are dropped.
	rev      uint64
	saveMu   sync.Mutex
	savedRev uint64

	wg sync.WaitGroup
}

func New(api API, opts Options) *Inbox {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.InitDelay < 0 {
		opts.InitDelay = 0
	}
	if opts.HistoryKV == nil {
		opts.HistoryKV = NewMemoryKV()
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Inbox{
		api:    api,
		opts:   opts,
		kv:     opts.HistoryKV,
		toasts: NewToasts(opts.MaxToasts),
		logger: opts.Logger,
		// Until Init names a user the history lives under a shared key.
		history: NewHistory(opts.HistoryKV, historyKey(0), opts.HistoryCapacity),
	}
}

func historyKey(userID int64) string {
	return fmt.Sprintf("notifications:%d", userID)
}

// Init prepares the inbox for s once: after InitDelay it loads the
// persisted history, fetches the first page and the unread count, then
// keeps a live stream open until Close. Calling it again for the same
// user waits for the first call instead of repeating the work; a
// different user replaces the previous session.
func (ib *Inbox) Init(ctx context.Context, s Session) error {
	ib.lifeMu.Lock()
	if ib.session != nil && ib.session.UserID == s.UserID {
		ready := ib.ready
		ib.lifeMu.Unlock()
		select {
		case <-ready:
			ib.lifeMu.Lock()
			defer ib.lifeMu.Unlock()
			if ib.ready != ready || ib.session == nil {
				return ErrInitFailed
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ib.session != nil {
		ib.stopLocked()
	}
	ready := make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	ib.session, ib.ready, ib.cancel = &s, ready, cancel
	ib.lifeMu.Unlock()
	defer close(ready)

	err := ib.start(ctx, runCtx, s)
	if err != nil {
		ib.lifeMu.Lock()
		if ib.ready == ready {
			ib.session = nil
			cancel()
		}
		ib.lifeMu.Unlock()
	}
	return err
}

func (ib *Inbox) start(ctx, runCtx context.Context, s Session) error {
	if ib.opts.InitDelay > 0 {
		t := time.NewTimer(ib.opts.InitDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-runCtx.Done():
			return context.Canceled
		}
	}

	history := NewHistory(ib.kv, historyKey(s.UserID), ib.opts.HistoryCapacity)
	persisted, err := history.Load(ctx)
	if err != nil {
		ib.logger.Warn("discarding unreadable history", zap.Int64("user_id", s.UserID), zap.Error(err))
		persisted = nil
	}
	ib.mu.Lock()
	ib.userID = s.UserID
	ib.history = history
	ib.entries = persisted
	ib.currentPage, ib.totalPages, ib.unread = 0, 0, 0
	restored := ib.snapshotLocked()
	ib.mu.Unlock()
	ib.notify(restored)

	if err := ib.Fetch(ctx, 1); err != nil {
		return fmt.Errorf("initial fetch: %w", err)
	}
	if err := ib.RefreshUnread(ctx); err != nil {
		ib.logger.Warn("initial unread count failed", zap.Error(err))
	}

	ib.wg.Add(1)
	go func() {
		defer ib.wg.Done()
		ib.subscribe(runCtx, s.UserID)
	}()
	return nil
}

// subscribe keeps the stream open, reconnecting with backoff.
func (ib *Inbox) subscribe(ctx context.Context, userID int64) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 30 * time.Second

	_ = backoff.RetryNotify(func() error {
		err := ib.api.Stream(ctx, userID, ib.handlePush)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = notifyclient.ErrStreamClosed
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		ib.logger.Warn("notification stream dropped", zap.Error(err), zap.Duration("reconnect_in", wait))
	})
}

// handlePush applies a live notification. Pushes addressed to someone
// else are dropped.
func (ib *Inbox) handlePush(n notifyclient.Notification) {
	ib.mu.Lock()
	if n.UserID != ib.userID {
		ib.mu.Unlock()
		ib.logger.Debug("dropping push for another user", zap.Int64("user_id", n.UserID))
		return
	}
	entry := Entry{LocalID: LocalID(n.ID), Notification: n}
	for _, e := range ib.entries {
		if e.LocalID == entry.LocalID {
			ib.mu.Unlock()
			return
		}
	}
	ib.entries = ib.capLocked(append([]Entry{entry}, ib.entries...))
	if !n.Read {
		ib.unread++
	}
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.toasts.Show(Toast{
		Title:      n.Title,
		Message:    n.Message,
		Priority:   n.Priority,
		Persistent: n.Priority == "high",
	})
	ib.persist(context.Background(), state)
	ib.notify(state)
}

// Fetch loads page from the server. Page 1 replaces the cached list;
// later pages append entries not already cached.
func (ib *Inbox) Fetch(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	p, err := ib.api.List(ctx, page, ib.opts.PageSize)
	if err != nil {
		return err
	}

	fetched := make([]Entry, 0, len(p.Items))
	for _, n := range p.Items {
		fetched = append(fetched, Entry{LocalID: LocalID(n.ID), Notification: n})
	}

	ib.mu.Lock()
	if page == 1 {
		ib.entries = ib.capLocked(fetched)
	} else {
		seen := make(map[string]bool, len(ib.entries))
		for _, e := range ib.entries {
			seen[e.LocalID] = true
		}
		for _, e := range fetched {
			if !seen[e.LocalID] {
				ib.entries = append(ib.entries, e)
			}
		}
		ib.entries = ib.capLocked(ib.entries)
	}
	ib.currentPage = p.Page
	ib.totalPages = p.TotalPages
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.persist(ctx, state)
	ib.notify(state)
	return nil
}

// HasMore reports whether another page can be fetched.
func (ib *Inbox) HasMore() bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.currentPage < ib.totalPages
}

// RefreshUnread replaces the unread counter with the server's value.
func (ib *Inbox) RefreshUnread(ctx context.Context) error {
	n, err := ib.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	ib.mu.Lock()
	ib.unread = n
	state := ib.snapshotLocked()
	ib.mu.Unlock()
	ib.notify(state)
	return nil
}

// MarkRead flips the entry to read locally, then acknowledges it to the
// server in the background. A failed acknowledgement is logged and the
// local state is kept; the next refresh reconciles it.
func (ib *Inbox) MarkRead(ctx context.Context, localID string) error {
	id, err := serverID(localID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, localID)
	}

	now := time.Now().UTC()
	ib.mu.Lock()
	idx := -1
	for i := range ib.entries {
		if ib.entries[i].LocalID == localID {
			idx = i
			break
		}
	}
	if idx < 0 {
		ib.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, localID)
	}
	if ib.entries[idx].Read {
		ib.mu.Unlock()
		return nil
	}
	ib.entries[idx].Read = true
	ib.entries[idx].ReadAt = &now
	if ib.unread > 0 {
		ib.unread--
	}
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.persist(ctx, state)
	ib.notify(state)

	ib.background(ctx, "mark read", func(ctx context.Context) error {
		return ib.api.MarkRead(ctx, id)
	})
	return nil
}

// MarkAllRead flips every cached entry and the counter synchronously; the
// server acknowledgement follows in the background.
func (ib *Inbox) MarkAllRead(ctx context.Context) {
	now := time.Now().UTC()
	ib.mu.Lock()
	for i := range ib.entries {
		if !ib.entries[i].Read {
			ib.entries[i].Read = true
			ib.entries[i].ReadAt = &now
		}
	}
	ib.unread = 0
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.persist(ctx, state)
	ib.notify(state)

	ib.background(ctx, "mark all read", func(ctx context.Context) error {
		_, err := ib.api.MarkAllRead(ctx)
		return err
	})
}

// ClearAll deletes every notification on the server, then locally.
func (ib *Inbox) ClearAll(ctx context.Context) error {
	if _, err := ib.api.DeleteAll(ctx); err != nil {
		return err
	}

	ib.mu.Lock()
	ib.entries = nil
	ib.currentPage, ib.totalPages = 0, 0
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.saveMu.Lock()
	if err := state.history.Clear(ctx); err != nil {
		ib.logger.Warn("failed to clear history", zap.Error(err))
	} else if state.rev > ib.savedRev {
		ib.savedRev = state.rev
	}
	ib.saveMu.Unlock()
	ib.notify(state)
	ib.resyncUnread(ctx)
	return nil
}

// ClearOlderThan deletes notifications older than days on the server and
// drops the matching cached entries.
func (ib *Inbox) ClearOlderThan(ctx context.Context, days int) error {
	if _, err := ib.api.DeleteOlderThan(ctx, days); err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	ib.mu.Lock()
	kept := ib.entries[:0]
	for _, e := range ib.entries {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	ib.entries = kept
	state := ib.snapshotLocked()
	ib.mu.Unlock()

	ib.persist(ctx, state)
	ib.notify(state)
	ib.resyncUnread(ctx)
	return nil
}

func (ib *Inbox) State() State {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.snapshotLocked()
}

func (ib *Inbox) Unread() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.unread
}

func (ib *Inbox) Toasts() *Toasts {
	return ib.toasts
}

// Close stops the stream and waits for background acknowledgements.
func (ib *Inbox) Close() {
	ib.lifeMu.Lock()
	ib.stopLocked()
	ib.lifeMu.Unlock()
	ib.wg.Wait()
	ib.toasts.Clear()
}

func (ib *Inbox) stopLocked() {
	if ib.cancel != nil {
		ib.cancel()
		ib.cancel = nil
	}
	ib.session = nil
}

// background runs a server acknowledgement detached from the caller, then
// re-syncs the unread counter.
func (ib *Inbox) background(ctx context.Context, what string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	ib.wg.Add(1)
	go func() {
		defer ib.wg.Done()
		if err := fn(ctx); err != nil {
			ib.logger.Warn("server acknowledgement failed", zap.String("action", what), zap.Error(err))
		}
		ib.resyncUnread(ctx)
	}()
}

func (ib *Inbox) resyncUnread(ctx context.Context) {
	if err := ib.RefreshUnread(ctx); err != nil {
		ib.logger.Warn("unread count refresh failed", zap.Error(err))
	}
}

func (ib *Inbox) capLocked(entries []Entry) []Entry {
	if limit := ib.opts.HistoryCapacity; len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func (ib *Inbox) snapshotLocked() State {
	ib.rev++
	return State{
		Entries:     append([]Entry(nil), ib.entries...),
		Unread:      ib.unread,
		CurrentPage: ib.currentPage,
		TotalPages:  ib.totalPages,
		rev:         ib.rev,
		history:     ib.history,
	}
}

// persist saves state unless a newer snapshot was already written.
func (ib *Inbox) persist(ctx context.Context, state State) {
	ib.saveMu.Lock()
	defer ib.saveMu.Unlock()
	if state.rev < ib.savedRev {
		return
	}
	if err := state.history.Save(context.WithoutCancel(ctx), state.Entries); err != nil {
		ib.logger.Warn("failed to persist history", zap.Error(err))
		return
	}
	ib.savedRev = state.rev
}

func (ib *Inbox) notify(state State) {
	if ib.opts.OnChange != nil {
		ib.opts.OnChange(state)
	}
}
