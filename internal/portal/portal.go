package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"teesync/internal/booking"
	appLog "teesync/internal/log"
)

const (
	DefaultBaseURL    = "https://members.brsgolf.com"
	DefaultTimeoutSec = 60
)

// Element selectors on the portal's login page.
const (
	usernameInput = `#login_form_username`
	passwordInput = `#login_form_password`
	loginButton   = `#login_form_login`
	bookingsMain  = `main`
)

// Options defines how the browser session reaches the portal.
type Options struct {
	// BaseURL is the portal root. If empty, DefaultBaseURL is used.
	BaseURL string
	// Club is the club slug, e.g. "killeen" in /killeen/bookings.
	Club string

	// ExecPath points at a Chromium binary; empty lets chromedp find one.
	ExecPath string
	Headless bool

	// Timeout bounds each step (login, scrape, screenshot). If zero,
	// DefaultTimeoutSec is used.
	Timeout time.Duration
}

func (o Options) withDefaults() (Options, error) {
	if o.Club == "" {
		return o, errors.New("portal: club is required")
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return o, nil
}

// LoginURL is the member login page for the club.
func (o Options) LoginURL() string {
	return o.BaseURL + "/" + o.Club + "/login"
}

// BookingsURL lists the member's upcoming bookings.
func (o Options) BookingsURL() string {
	return o.BaseURL + "/" + o.Club + "/bookings"
}

// Session is one headless Chromium instance. Close must be called on every
// exit path; it is safe to call more than once.
type Session struct {
	opts Options

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// Open starts the browser. parentCtx cancellation tears the browser down.
func Open(parentCtx context.Context, opts Options) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// An empty Run launches the browser so startup errors surface here.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("portal: start browser: %w", err)
	}

	appLog.Debug("portal browser started", "headless", opts.Headless, "exec_path", opts.ExecPath)

	return &Session{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the browser.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
		appLog.Debug("portal browser closed")
	})
}

// run executes tasks on the browser with the step timeout, also stopping
// when ctx is cancelled.
func (s *Session) run(ctx context.Context, tasks chromedp.Tasks) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, tasks)
}

// Login signs in with the member's portal credentials.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("portal: username and password are required")
	}

	appLog.Info("portal login", "url", s.opts.LoginURL())

	tasks := chromedp.Tasks{
		chromedp.Navigate(s.opts.LoginURL()),
		chromedp.WaitVisible(usernameInput, chromedp.ByID),
		chromedp.SendKeys(usernameInput, username, chromedp.ByID),
		chromedp.SendKeys(passwordInput, password, chromedp.ByID),
		chromedp.Click(loginButton, chromedp.ByID),
		// The login form disappears once the portal accepts the credentials.
		chromedp.WaitNotPresent(loginButton, chromedp.ByID),
	}
	if err := s.run(ctx, tasks); err != nil {
		return fmt.Errorf("portal: login: %w", err)
	}
	return nil
}

// BookingLines loads the bookings page and returns the visible text of its
// main content area, one entry per rendered line.
func (s *Session) BookingLines(ctx context.Context) ([]string, error) {
	var text string
	tasks := chromedp.Tasks{
		chromedp.Navigate(s.opts.BookingsURL()),
		chromedp.WaitReady(bookingsMain, chromedp.ByQuery),
		chromedp.Text(bookingsMain, &text, chromedp.ByQuery),
	}
	if err := s.run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("portal: read bookings page: %w", err)
	}

	lines := booking.SplitLines(text)
	appLog.Info("portal bookings page read", "url", s.opts.BookingsURL(), "lines", len(lines))
	return lines, nil
}

// Screenshot writes a full-page PNG of the current page to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var png []byte
	if err := s.run(ctx, chromedp.Tasks{chromedp.FullScreenshot(&png, 100)}); err != nil {
		return fmt.Errorf("portal: screenshot: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("portal: write screenshot: %w", err)
	}
	return nil
}

// Scraper runs one scoped portal session per Scrape call: open the browser,
// log in, read the bookings page, close the browser.
type Scraper struct {
	Options  Options
	Username string
	Password string

	// ScreenshotPath, if set, receives a PNG of the bookings page.
	ScreenshotPath string
}

// Scrape returns the bookings page lines. The browser is released on every
// return path.
func (sc *Scraper) Scrape(ctx context.Context) ([]string, error) {
	session, err := Open(ctx, sc.Options)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Login(ctx, sc.Username, sc.Password); err != nil {
		return nil, err
	}

	lines, err := session.BookingLines(ctx)
	if err != nil {
		return nil, err
	}

	if sc.ScreenshotPath != "" {
		if err := session.Screenshot(ctx, sc.ScreenshotPath); err != nil {
			// Debug artifact only; the scrape itself succeeded.
			appLog.Error("portal screenshot failed", err, "path", sc.ScreenshotPath)
		}
	}

	return lines, nil
}
