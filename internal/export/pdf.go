package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/lirads-audit-server/internal/domain"
)

// ErrRendererUnavailable is returned while the PDF breaker is open.
var ErrRendererUnavailable = errors.New("pdf renderer temporarily unavailable")

// HTMLRenderer prints an HTML document to PDF.
type HTMLRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// ChromeRenderer renders PDFs via headless Chromium.
type ChromeRenderer struct {
	execPath string
	timeout  time.Duration
}

// NewChromeRenderer creates a renderer. An empty execPath lets chromedp
// locate the browser.
func NewChromeRenderer(execPath string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChromeRenderer{execPath: execPath, timeout: timeout}
}

// RenderPDF loads html as a data URL and prints it. If Chromium is
// unavailable, it returns an error so the caller can decide to retry or skip.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, r.timeout)
	defer cancelTimeout()

	var pdfBuf []byte
	dataURL := "data:text/html," + url.PathEscape(html)
	err := chromedp.Run(runCtx,
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, perr := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if perr == nil {
				pdfBuf = buf
			}
			return perr
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run failed: %w", err)
	}
	return pdfBuf, nil
}

// BreakerRenderer stops calling a failing browser for a cool-down period.
type BreakerRenderer struct {
	next    HTMLRenderer
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerRenderer wraps next with a circuit breaker that opens after
// config.BreakerMaxFail consecutive failures.
func NewBreakerRenderer(next HTMLRenderer, config domain.ExportConfig, logger *logrus.Logger) *BreakerRenderer {
	maxFail := config.BreakerMaxFail
	if maxFail == 0 {
		maxFail = 3
	}
	openFor := config.BreakerOpenPeriod
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pdf-renderer",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFail
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &BreakerRenderer{next: next, breaker: cb}
}

// RenderPDF delegates to the wrapped renderer unless the breaker is open.
func (b *BreakerRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.RenderPDF(ctx, html)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// State reports the breaker state for health output.
func (b *BreakerRenderer) State() string {
	return b.breaker.State().String()
}
