// Package draw runs the bounded-lifetime draw-offer negotiation for one
// game: a short poll cycle over the offer list, toast notices with
// auto-expiry, per-offer-id de-duplication, and silent degradation when the
// server does not deploy the feature.
package draw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/gamesvc"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/notify"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// State is the client-observed negotiation state. The server stays
// authoritative; polls may move the state in any direction.
type State string

const (
	StateNoOffer          State = "no_offer"
	StateAwaitingOpponent State = "awaiting_opponent"
	StateIncomingPending  State = "incoming_pending"
	StateResolvedDraw     State = "resolved_draw"
	StateUnsupported      State = "unsupported"
)

const defaultPollInterval = 5 * time.Second

// ErrUnsupported is returned by Offer/Respond once the feature has been
// detected as not deployed for this session.
var ErrUnsupported = errors.New("draw offers unsupported for this session")

type offerClient interface {
	ListDrawOffers(ctx context.Context, sessionID string) (*gamesvc.DrawOfferListResponse, error)
	OfferDraw(ctx context.Context, sessionID string) error
	CancelDraw(ctx context.Context, sessionID, offerID string) error
	RespondDraw(ctx context.Context, sessionID, offerID string, accept bool) error
}

type Option func(*Manager)

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithClock injects the time source. Tests use it to drive toast expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithResolvedCallback registers the hook fired when the negotiation ends in
// an agreed draw; the session controller uses it to transition the game to
// its terminal state with result 1/2-1/2.
func WithResolvedCallback(fn func(result string)) Option {
	return func(m *Manager) { m.onResolved = fn }
}

type Manager struct {
	client    offerClient
	notifier  notify.Gateway
	seen      SeenStore
	sessionID string

	pollInterval time.Duration
	now          func() time.Time
	onResolved   func(result string)

	mu          sync.Mutex
	state       State
	offers      []clientdto.DrawOffer
	toasts      []Toast
	unsupported bool
	stopPoll    context.CancelFunc
	closed      bool
}

func NewManager(client offerClient, notifier notify.Gateway, seen SeenStore, sessionID string, opts ...Option) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if seen == nil {
		seen = NewMemorySeen()
	}
	m := &Manager{
		client:       client,
		notifier:     notifier,
		seen:         seen,
		sessionID:    sessionID,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		state:        StateNoOffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the poll loop. It runs until Close, the context ends, or
// the feature is detected as unsupported.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.stopPoll != nil {
		m.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	m.stopPoll = cancel
	m.mu.Unlock()

	go m.pollLoop(pollCtx)
}

// Close cancels the poll loop. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Unsupported reports whether the feature degraded for this session.
func (m *Manager) Unsupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsupported
}

// Offers returns the last authoritative offer list.
func (m *Manager) Offers() []clientdto.DrawOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]clientdto.DrawOffer(nil), m.offers...)
}

// ActiveToasts lists toasts that are neither dismissed nor expired.
func (m *Manager) ActiveToasts() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]Toast, 0, len(m.toasts))
	for _, t := range m.toasts {
		if t.visibleAt(now) {
			out = append(out, t)
		}
	}
	return out
}

// DismissToast hides the toast for an offer. The offer itself is untouched.
func (m *Manager) DismissToast(offerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.toasts {
		if m.toasts[i].OfferID == offerID {
			m.toasts[i].dismissed = true
		}
	}
}

// Offer sends a draw offer to the opponent.
func (m *Manager) Offer(ctx context.Context) error {
	m.mu.Lock()
	if m.unsupported {
		m.mu.Unlock()
		return ErrUnsupported
	}
	m.mu.Unlock()

	err := m.client.OfferDraw(ctx, m.sessionID)
	if errors.Is(err, gamesvc.ErrNotFound) {
		m.markUnsupported()
		return ErrUnsupported
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateAwaitingOpponent
	m.mu.Unlock()
	obslog.L().Info("draw_offered", zap.String("session_id", m.sessionID))
	return nil
}

// Cancel withdraws our outstanding offer. A no-op unless the state is
// awaiting-opponent; the offer id comes from the last polled list.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	if m.unsupported {
		m.mu.Unlock()
		return ErrUnsupported
	}
	if m.state != StateAwaitingOpponent {
		m.mu.Unlock()
		return nil
	}
	var offerID string
	for _, o := range m.offers {
		if !o.CanRespond {
			offerID = o.ID
			break
		}
	}
	m.mu.Unlock()
	if offerID == "" {
		// Offered but not yet polled back; nothing to address the delete at.
		return nil
	}

	err := m.client.CancelDraw(ctx, m.sessionID, offerID)
	if errors.Is(err, gamesvc.ErrNotFound) {
		m.markUnsupported()
		return ErrUnsupported
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateNoOffer
	m.mu.Unlock()
	obslog.L().Info("draw_offer_cancelled",
		zap.String("session_id", m.sessionID),
		zap.String("offer_id", offerID),
	)
	return nil
}

// Respond accepts or declines an incoming offer. Accepting resolves the
// negotiation and fires the resolved callback with 1/2-1/2.
func (m *Manager) Respond(ctx context.Context, offerID string, accept bool) error {
	m.mu.Lock()
	if m.unsupported {
		m.mu.Unlock()
		return ErrUnsupported
	}
	m.mu.Unlock()

	err := m.client.RespondDraw(ctx, m.sessionID, offerID, accept)
	if errors.Is(err, gamesvc.ErrNotFound) {
		m.markUnsupported()
		return ErrUnsupported
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	if accept {
		m.state = StateResolvedDraw
	} else {
		m.state = StateNoOffer
	}
	resolved := m.onResolved
	m.mu.Unlock()

	obslog.L().Info("draw_responded",
		zap.String("session_id", m.sessionID),
		zap.String("offer_id", offerID),
		zap.Bool("accept", accept),
	)
	if accept && resolved != nil {
		resolved(clientdto.ResultDraw)
	}
	return nil
}

// Refresh performs one poll of the offer list. The loop calls it on a
// ticker; tests call it directly.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.unsupported || m.state == StateResolvedDraw {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	resp, err := m.client.ListDrawOffers(ctx, m.sessionID)
	if errors.Is(err, gamesvc.ErrNotFound) {
		m.markUnsupported()
		return nil
	}
	if err != nil {
		// Transient; the next tick retries.
		obslog.L().Debug("draw_poll_failed", zap.String("session_id", m.sessionID), zap.Error(err))
		return err
	}

	var fresh []clientdto.DrawOffer
	incoming := 0
	outgoing := 0
	for _, o := range resp.Offers {
		offer := clientdto.DrawOffer{
			ID:          o.ID,
			OffererID:   o.OffererID,
			OffererName: o.OffererName,
			CanRespond:  o.CanRespond,
			CreatedAt:   o.CreatedAt,
		}
		fresh = append(fresh, offer)
		if o.CanRespond {
			incoming++
			m.surfaceIncoming(ctx, offer)
		} else {
			outgoing++
		}
	}

	m.mu.Lock()
	m.offers = fresh
	wasAwaiting := m.state == StateAwaitingOpponent
	switch {
	case resp.GameEnded && wasAwaiting:
		m.state = StateResolvedDraw
	case incoming > 0:
		m.state = StateIncomingPending
	case outgoing > 0:
		m.state = StateAwaitingOpponent
	default:
		m.state = StateNoOffer
	}
	resolvedNow := m.state == StateResolvedDraw && wasAwaiting && resp.GameEnded
	resolved := m.onResolved
	m.mu.Unlock()

	if resolvedNow && resolved != nil {
		resolved(clientdto.ResultDraw)
	}
	return nil
}

// surfaceIncoming shows a toast and an OS notification exactly once per
// offer id.
func (m *Manager) surfaceIncoming(ctx context.Context, offer clientdto.DrawOffer) {
	seen, err := m.seen.Seen(ctx, m.sessionID, offer.ID)
	if err != nil {
		obslog.L().Warn("draw_seen_check_failed", zap.String("offer_id", offer.ID), zap.Error(err))
		return
	}
	if seen {
		return
	}
	if err := m.seen.MarkSeen(ctx, m.sessionID, offer.ID); err != nil {
		obslog.L().Warn("draw_seen_mark_failed", zap.String("offer_id", offer.ID), zap.Error(err))
	}

	text := fmt.Sprintf("%s offers a draw", offer.OffererName)
	m.mu.Lock()
	m.toasts = append(m.toasts, Toast{OfferID: offer.ID, Text: text, CreatedAt: m.now()})
	m.mu.Unlock()

	_ = m.notifier.Show(ctx, notify.Notification{
		Title:     "Draw offer",
		Body:      text,
		Tag:       "draw-" + offer.ID,
		AutoClose: toastLifetime,
	})
	obslog.L().Info("draw_offer_incoming",
		zap.String("session_id", m.sessionID),
		zap.String("offer_id", offer.ID),
	)
}

func (m *Manager) markUnsupported() {
	m.mu.Lock()
	m.unsupported = true
	m.state = StateUnsupported
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
	m.mu.Unlock()
	obslog.L().Info("draw_feature_unsupported", zap.String("session_id", m.sessionID))
}

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Refresh(ctx)
			m.mu.Lock()
			stop := m.unsupported || m.state == StateResolvedDraw
			m.mu.Unlock()
			if stop {
				return
			}
		}
	}
}
