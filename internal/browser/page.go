package browser

import "context"

// Page is one browser tab. Selectors are CSS locators; the Session does
// the fallback across candidates, a Page only answers for one locator.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Exists reports whether selector currently matches, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	SendKeys(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the tab and its browser process. It is idempotent.
	Close() error
}

// Launcher starts pages.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Page, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context) (Page, error) { return f(ctx) }
