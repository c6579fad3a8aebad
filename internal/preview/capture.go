package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters. These should match the /preview page size.
const (
	DefaultWidth      = 1200
	DefaultHeight     = 1200
	DefaultTimeoutSec = 30
)

// CaptureOptions defines parameters for a Chromium-based screenshot capture.
type CaptureOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/preview".
	URL string

	// OutputPath is where the PNG is written. Empty means the PNG is only
	// returned.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
}

// CapturePNG drives headless Chromium to opts.URL, waits for the chart canvas
// to appear and returns a full-page PNG screenshot.
func CapturePNG(parentCtx context.Context, opts CaptureOptions) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("preview: URL is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		// echarts draws into a canvas once its script has run.
		chromedp.WaitVisible(`canvas`, chromedp.ByQuery),
		// Let the series animation finish.
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("preview: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("preview: create output dir: %w", err)
		}
		if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
			return nil, fmt.Errorf("preview: failed to write PNG: %w", err)
		}
	}
	return png, nil
}
