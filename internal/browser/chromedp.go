package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/kleinsync/internal/logger"
)

// Resource types dropped when Config.BlockResources is set.
var blockedResources = map[network.ResourceType]bool{
	network.ResourceTypeImage:      true,
	network.ResourceTypeStylesheet: true,
	network.ResourceTypeFont:       true,
	network.ResourceTypeMedia:      true,
}

// ChromeLauncher starts one headless Chrome per page.
type ChromeLauncher struct {
	cfg Config
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(cfg Config) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg.withDefaults()}
}

// Launch starts a browser and returns its first tab. The browser is torn
// down when the page is closed or ctx is cancelled, whichever comes first.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(l.cfg.UserAgent),
	)
	if chromePath := FindChromePath(l.cfg.ChromePath); chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	p := &chromePage{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}
	p.stop = context.AfterFunc(ctx, p.cancel)

	var actions []chromedp.Action
	if l.cfg.BlockResources {
		interceptRequests(browserCtx)
		actions = append(actions, fetch.Enable())
	}
	// The first Run allocates the browser and binds it to the context it is
	// given, so it must be the tab context itself.
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("browser started",
		"headless", l.cfg.Headless,
		"block_resources", l.cfg.BlockResources)

	return p, nil
}

// interceptRequests answers paused requests: blocked resource types fail,
// everything else continues unchanged.
func interceptRequests(browserCtx context.Context) {
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(browserCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(browserCtx, c.Target)

			var err error
			if blockedResources[e.ResourceType] {
				err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			} else {
				err = fetch.ContinueRequest(e.RequestID).Do(execCtx)
			}
			if err != nil && browserCtx.Err() == nil {
				logger.Debug("request interception failed", "url", e.Request.URL, "error", err)
			}
		}()
	})
}

type chromePage struct {
	ctx    context.Context
	cancel func()
	stop   func() bool
	once   sync.Once
}

// run executes actions on the tab bounded by both the tab and ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	return len(nodes) > 0, err
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (p *chromePage) SendKeys(ctx context.Context, selector, value string) error {
	return p.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

func (p *chromePage) Close() error {
	p.once.Do(func() {
		if p.stop != nil {
			p.stop()
		}
		p.cancel()
	})
	return nil
}
