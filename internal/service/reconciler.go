package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// NoticeKind identifies what a reconciliation notice reports
type NoticeKind int

const (
	NoticeStatus NoticeKind = iota
	NoticeTerminal
	NoticeOutput
)

// Notice is a message produced by one reconciliation cycle
type Notice struct {
	Kind NoticeKind
	Text string
}

// Observation is the last remote state seen for one session
type Observation struct {
	seen       bool
	category   domain.StatusCategory
	output     any
	sawRunning bool

	// awaitRunning keeps a terminal state from ending the poll until the
	// session has been seen RUNNING again or has re-entered that state with
	// new output.
	awaitRunning bool
}

// Category returns the last observed status category
func (o *Observation) Category() domain.StatusCategory {
	if !o.seen {
		return domain.StatusUnknown
	}
	return o.category
}

// Finished reports whether polling should stop: the session is blocked or
// stopped, or it has left RUNNING for an unknown state.
func (o *Observation) Finished() bool {
	if !o.seen {
		return false
	}
	switch {
	case o.category == domain.StatusRunning:
		return false
	case o.category.IsTerminal():
		return !o.awaitRunning || o.sawRunning
	default:
		return o.sawRunning
	}
}

// SessionLister lists remote sessions for sibling enrichment
type SessionLister interface {
	ListSessions(ctx context.Context) ([]domain.RemoteSessionSnapshot, error)
}

type cachedLister struct {
	lister SessionLister
	cache  domain.SnapshotCache
}

// NewCachedLister serves listings from cache while they are fresh. A nil
// cache returns lister unchanged.
func NewCachedLister(lister SessionLister, cache domain.SnapshotCache) SessionLister {
	if cache == nil {
		return lister
	}
	return &cachedLister{lister: lister, cache: cache}
}

func (c *cachedLister) ListSessions(ctx context.Context) ([]domain.RemoteSessionSnapshot, error) {
	snaps, ok, err := c.cache.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Session list cache read failed")
	} else if ok {
		return snaps, nil
	}

	snaps, err = c.lister.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, snaps); err != nil {
		log.Warn().Err(err).Msg("Session list cache write failed")
	}
	return snaps, nil
}

// Reconciler diffs freshly fetched session state against the last
// observation and decides which notices to emit.
type Reconciler struct {
	lister       SessionLister
	siblingLimit int
}

// NewReconciler creates a reconciler. A nil lister or a zero limit disables
// sibling enrichment.
func NewReconciler(lister SessionLister, siblingLimit int) *Reconciler {
	return &Reconciler{lister: lister, siblingLimit: siblingLimit}
}

// Reconcile compares snap against obs, updates obs and returns the notices
// to deliver, in order.
func (r *Reconciler) Reconcile(ctx context.Context, obs *Observation, snap *domain.RemoteSessionSnapshot, sessionURL string) []Notice {
	var notices []Notice

	statusChanged := !obs.seen || obs.category != snap.StatusCategory
	outputChanged := !outputsEqual(obs.output, snap.StructuredOutput)

	// A resumed session that ran and stopped again between two ticks shows
	// up as fresh output under the same terminal category.
	reentered := !statusChanged && obs.awaitRunning && !obs.sawRunning &&
		snap.StatusCategory.IsTerminal() && outputChanged && !isAbsent(snap.StructuredOutput)
	statusChanged = statusChanged || reentered

	if statusChanged {
		text := "📊 Status update: " + snap.StatusText
		if siblings := r.Siblings(ctx, snap.SessionID); len(siblings) > 0 {
			text += "\n\n" + formatSiblings(siblings)
		}
		notices = append(notices, Notice{Kind: NoticeStatus, Text: text})

		switch snap.StatusCategory {
		case domain.StatusStopped:
			notices = append(notices, Notice{Kind: NoticeTerminal, Text: fmt.Sprintf(msgSessionCompleted, sessionURL)})
		case domain.StatusBlocked:
			notices = append(notices, Notice{Kind: NoticeTerminal, Text: fmt.Sprintf(msgSessionBlocked, sessionURL)})
		}
	}

	if outputChanged && !isAbsent(snap.StructuredOutput) {
		notices = append(notices, Notice{
			Kind: NoticeOutput,
			Text: "📝 Update from Devin:\n\n" + FormatStructuredOutput(snap.StructuredOutput),
		})
	}

	obs.record(snap)
	if reentered {
		obs.sawRunning = true
	}
	return notices
}

// Prime records snap as observed without producing notices
func (r *Reconciler) Prime(obs *Observation, snap *domain.RemoteSessionSnapshot) {
	obs.record(snap)
}

func (o *Observation) record(snap *domain.RemoteSessionSnapshot) {
	o.seen = true
	o.category = snap.StatusCategory
	o.output = snap.StructuredOutput
	if snap.StatusCategory == domain.StatusRunning {
		o.sawRunning = true
	}
}

// Siblings returns up to the configured number of other remote sessions,
// most recently updated first. Listing failures yield no siblings.
func (r *Reconciler) Siblings(ctx context.Context, currentID string) []domain.RemoteSessionSnapshot {
	if r.lister == nil || r.siblingLimit <= 0 {
		return nil
	}

	all, err := r.lister.ListSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session_id", currentID).Msg("Failed to list sibling sessions")
		return nil
	}
	return SelectSiblings(all, currentID, r.siblingLimit)
}

// SelectSiblings drops the current session, sorts by UpdatedAt descending
// and keeps at most limit entries.
func SelectSiblings(all []domain.RemoteSessionSnapshot, currentID string, limit int) []domain.RemoteSessionSnapshot {
	siblings := make([]domain.RemoteSessionSnapshot, 0, len(all))
	for _, s := range all {
		if s.SessionID != currentID {
			siblings = append(siblings, s)
		}
	}
	sort.SliceStable(siblings, func(i, j int) bool {
		return siblings[i].UpdatedAt.After(siblings[j].UpdatedAt)
	})
	if len(siblings) > limit {
		siblings = siblings[:limit]
	}
	return siblings
}

func formatSiblings(siblings []domain.RemoteSessionSnapshot) string {
	var b strings.Builder
	b.WriteString("🗂 Other recent sessions:")
	for _, s := range siblings {
		name := s.Title
		if name == "" {
			name = s.SessionID
		}
		fmt.Fprintf(&b, "\n• %s (%s)", name, s.StatusText)
	}
	return b.String()
}

// outputsEqual compares structured outputs by value, treating empty as nil
func outputsEqual(a, b any) bool {
	if isAbsent(a) || isAbsent(b) {
		return isAbsent(a) == isAbsent(b)
	}
	return reflect.DeepEqual(a, b)
}
