package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/parser"
	"github.com/jmylchreest/kleinsync/internal/selectors"
)

// State is the lifecycle position of a Session.
type State int

const (
	Uninitialized State = iota
	Initialized
	Authenticated
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the reference clock used to normalize page timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is one authenticated browsing context. It is not safe for
// concurrent use by multiple goroutines beyond Close and State.
type Session struct {
	launcher Launcher
	table    *selectors.Table
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	page  Page
	state State
	email string
}

// NewSession creates a session. No browser is started until Initialize
// or Login is called.
func NewSession(launcher Launcher, table *selectors.Table, cfg Config, opts ...SessionOption) *Session {
	s := &Session{
		launcher: launcher,
		table:    table,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Initialize launches the page. Calling it again once initialized is a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch st := s.state; st {
	case Initialized, Authenticated:
		s.mu.Unlock()
		return nil
	case Closed, Failed:
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot initialize a %s session", domain.ErrSessionState, st)
	}
	s.mu.Unlock()

	// Launch runs unlocked so Close is never stuck behind a starting browser.
	page, err := s.launcher.Launch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.state != Closed {
			s.state = Failed
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	switch {
	case s.state == Closed:
		_ = page.Close()
		return fmt.Errorf("%w: session closed during launch", domain.ErrSessionState)
	case s.page != nil:
		// A concurrent Initialize won.
		_ = page.Close()
		return nil
	}
	s.page = page
	s.state = Initialized
	return nil
}

// Login signs in with email and password. The inline error element is
// checked before the session marker on every probe; seeing neither within
// the probe window is a failed login. Any failure leaves the session Failed.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if st := s.State(); st == Closed || st == Failed {
		return fmt.Errorf("%w: cannot log in from %s", domain.ErrSessionState, st)
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	if err := s.login(ctx, email, password); err != nil {
		s.setState(Failed)
		s.captureScreenshot(ctx)
		return err
	}

	s.mu.Lock()
	s.email = email
	s.state = Authenticated
	s.mu.Unlock()

	logger.Debug("login succeeded", "email", email)
	return nil
}

func (s *Session) login(ctx context.Context, email, password string) error {
	if err := s.navigate(ctx, s.table.URLs.Login); err != nil {
		return err
	}

	emailField, err := s.resolve(ctx, selectors.LoginEmail)
	if err != nil {
		return err
	}
	if err := s.page.SendKeys(ctx, emailField, email); err != nil {
		return fmt.Errorf("failed to type email: %w", err)
	}

	passwordField, err := s.resolve(ctx, selectors.LoginPassword)
	if err != nil {
		return err
	}
	if err := s.page.SendKeys(ctx, passwordField, password); err != nil {
		return fmt.Errorf("failed to type password: %w", err)
	}

	submit, err := s.resolve(ctx, selectors.LoginSubmit)
	if err != nil {
		return err
	}
	if err := s.page.Click(ctx, submit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	return s.probeLogin(ctx)
}

// probeLogin polls for the error element or the session marker.
func (s *Session) probeLogin(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.LoginProbe)
	defer cancel()

	noSession := fmt.Errorf("%w: no session after submit", domain.ErrLoginFailed)
	for {
		if loc, ok, err := s.first(probeCtx, selectors.LoginError); err != nil {
			if probeCtx.Err() != nil && ctx.Err() == nil {
				return noSession
			}
			return s.waitErr(ctx, err)
		} else if ok {
			msg, _ := s.page.Text(probeCtx, loc)
			if msg == "" {
				msg = "site reported an error"
			}
			return fmt.Errorf("%w: %s", domain.ErrLoginFailed, msg)
		}

		if _, ok, err := s.first(probeCtx, selectors.SessionMarker); err != nil {
			if probeCtx.Err() != nil && ctx.Err() == nil {
				return noSession
			}
			return s.waitErr(ctx, err)
		} else if ok {
			return nil
		}

		if err := s.pause(ctx, probeCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return noSession
		}
	}
}

// ListConversations reads the inbox. A page with no rows within the
// element timeout yields an empty list.
func (s *Session) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	if err := s.requireAuthenticated("list conversations"); err != nil {
		return nil, err
	}
	if err := s.navigate(ctx, s.table.URLs.Inbox); err != nil {
		return nil, err
	}

	doc, err := s.document(ctx, selectors.InboxRow)
	if err != nil || doc == nil {
		return nil, err
	}
	return parser.ExtractConversations(doc, s.table, s.now()), nil
}

// ListMessages opens the thread at locator and reads its messages.
func (s *Session) ListMessages(ctx context.Context, locator string) ([]domain.MessageRecord, error) {
	if err := s.requireAuthenticated("list messages"); err != nil {
		return nil, err
	}
	target, err := s.table.ResolveURL(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	if err := s.openThread(ctx, target); err != nil {
		return nil, err
	}

	doc, err := s.document(ctx, selectors.ThreadMessage)
	if err != nil || doc == nil {
		return nil, err
	}

	s.mu.Lock()
	email := s.email
	s.mu.Unlock()
	return parser.ExtractMessages(doc, s.table, email, s.now()), nil
}

// SendMessage types body into the reply field of the thread at locator and
// submits it. Every failure wraps domain.ErrSendFailed.
func (s *Session) SendMessage(ctx context.Context, locator, body string) error {
	if err := s.requireAuthenticated("send message"); err != nil {
		return err
	}
	if err := s.sendMessage(ctx, locator, body); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSendFailed, err)
	}
	return nil
}

func (s *Session) sendMessage(ctx context.Context, locator, body string) error {
	target, err := s.table.ResolveURL(locator)
	if err != nil {
		return err
	}
	if err := s.openThread(ctx, target); err != nil {
		return err
	}

	reply, err := s.resolve(ctx, selectors.ThreadReply)
	if err != nil {
		return err
	}
	if err := s.page.SendKeys(ctx, reply, body); err != nil {
		return fmt.Errorf("failed to type reply: %w", err)
	}

	send, err := s.resolve(ctx, selectors.ThreadSend)
	if err != nil {
		return err
	}
	if err := s.page.Click(ctx, send); err != nil {
		return fmt.Errorf("failed to click send: %w", err)
	}

	if s.cfg.SendSettle > 0 {
		timer := time.NewTimer(s.cfg.SendSettle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	logger.Debug("reply sent", "thread", target)
	return nil
}

// Close releases the page. It is safe to call from any state and more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	page := s.page
	s.page = nil
	s.state = Closed
	s.mu.Unlock()

	if page == nil {
		return nil
	}
	return page.Close()
}

func (s *Session) requireAuthenticated(op string) error {
	if st := s.State(); st != Authenticated {
		return fmt.Errorf("%w: cannot %s while %s", domain.ErrSessionState, op, st)
	}
	return nil
}

// navigate loads url, bounded by the navigation timeout.
func (s *Session) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := s.page.Navigate(navCtx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || navCtx.Err() != nil {
			return fmt.Errorf("%w: %s", domain.ErrNavigationTimeout, url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// openThread navigates to target unless the page already shows it.
func (s *Session) openThread(ctx context.Context, target string) error {
	if loc, err := s.page.Location(ctx); err == nil && loc == target {
		logger.Debug("already on thread", "thread", target)
		return nil
	}
	return s.navigate(ctx, target)
}

// document waits for el to appear and parses the page. It returns a nil
// document and nil error when el never appears; page errors during the
// wait are returned.
func (s *Session) document(ctx context.Context, el selectors.Element) (*goquery.Document, error) {
	if _, err := s.resolve(ctx, el); err != nil {
		if errors.Is(err, domain.ErrElementNotFound) {
			logger.Debug("no items on page", "element", el)
			return nil, nil
		}
		return nil, err
	}

	html, err := s.page.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return parser.Parse(html)
}

// resolve polls the candidates for el until one matches or the element
// timeout passes.
func (s *Session) resolve(ctx context.Context, el selectors.Element) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ElementTimeout)
	defer cancel()

	for {
		loc, ok, err := s.first(waitCtx, el)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "", ctx.Err()
			case waitCtx.Err() != nil:
				// The element timeout ran out mid-query.
				return "", fmt.Errorf("%w: %s", domain.ErrElementNotFound, el)
			}
			return "", fmt.Errorf("failed to query %s: %w", el, err)
		}
		if ok {
			return loc, nil
		}
		if err := s.pause(ctx, waitCtx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %s", domain.ErrElementNotFound, el)
		}
	}
}

// first returns the first candidate for el present on the page right now.
func (s *Session) first(ctx context.Context, el selectors.Element) (string, bool, error) {
	for _, loc := range s.table.Candidates(el) {
		ok, err := s.page.Exists(ctx, loc)
		if err != nil {
			return "", false, err
		}
		if ok {
			return loc, true, nil
		}
	}
	return "", false, nil
}

// pause sleeps one poll interval or returns an error when either context ends.
func (s *Session) pause(ctx, waitCtx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCtx.Done():
		return waitCtx.Err()
	case <-timer.C:
		return nil
	}
}

// waitErr prefers the caller's cancellation over a page error.
func (s *Session) waitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) captureScreenshot(ctx context.Context) {
	if !s.cfg.Screenshots || !logger.Enabled(slog.LevelDebug) {
		return
	}
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return
	}

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	shot, err := page.Screenshot(shotCtx)
	if err != nil || len(shot) == 0 {
		return
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("kleinsync-login-%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, shot, 0o600); err == nil {
		logger.Debug("debug screenshot saved", "path", path)
	}
}
