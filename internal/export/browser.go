package export

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const regionSelector = "#region"

var chromeCandidates = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// BrowserRenderer renders regions and prints pages with headless Chrome.
type BrowserRenderer struct {
	execPath string
	timeout  time.Duration
}

// NewBrowserRenderer creates a renderer. An empty execPath looks Chrome up on PATH.
func NewBrowserRenderer(execPath string, timeout time.Duration) *BrowserRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserRenderer{execPath: execPath, timeout: timeout}
}

// Available reports whether a Chrome binary can be found.
func (b *BrowserRenderer) Available() bool {
	_, err := b.lookPath()
	return err == nil
}

func (b *BrowserRenderer) lookPath() (string, error) {
	if b.execPath != "" {
		return exec.LookPath(b.execPath)
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrRenderDependencyMissing)
}

// Render implements Renderer with an element screenshot of the region page.
func (b *BrowserRenderer) Render(ctx context.Context, region Region) ([]byte, error) {
	html, err := RenderRegionHTML(region)
	if err != nil {
		return nil, fmt.Errorf("%w: render region template: %v", ErrRenderFailure, err)
	}
	w, h := region.size()

	var shot []byte
	err = b.run(ctx,
		chromedp.EmulateViewport(int64(w), int64(h), chromedp.EmulateScale(RenderScale)),
		emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 255, G: 255, B: 255, A: 1}),
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitVisible(regionSelector, chromedp.ByQuery),
		chromedp.Screenshot(regionSelector, &shot, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return shot, nil
}

// PrintPDF implements Printer with one landscape A4 page and no margins.
func (b *BrowserRenderer) PrintPDF(ctx context.Context, html string) ([]byte, error) {
	var pdfData []byte
	err := b.run(ctx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfData, nil
}

func (b *BrowserRenderer) run(ctx context.Context, actions ...chromedp.Action) error {
	path, err := b.lookPath()
	if err != nil {
		if b.execPath != "" {
			return fmt.Errorf("%w: %v", ErrRenderDependencyMissing, err)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("blink-settings", "scriptEnabled=false"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("%w: chrome: %v", ErrRenderFailure, err)
	}
	return nil
}
