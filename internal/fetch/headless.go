package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
)

// networkQuietWindow is how long loading must go quiet before a page is
// considered settled, on top of the additional late-script sleep spec.md
// prescribes.
const networkQuietWindow = 500 * time.Millisecond

// lateScriptSleep is the fixed wait after network-mostly-idle for scripts
// that mutate the DOM after their own network activity finishes.
const lateScriptSleep = 1 * time.Second

// navigationTimeout bounds one headless page load end to end.
const navigationTimeout = 30 * time.Second

// HeadlessFetcher drives a headless Chrome instance for the C6 escalation
// path. Grounded on other_examples' PathFinder render manager (network
// event listening, a quiet-window heuristic, chromedp.Sleep for late
// scripts) and generalized to decode into the same Page/Link shapes C5
// produces, so C7/C10 are agnostic to which path fetched a page.
type HeadlessFetcher struct {
	userAgent string
}

// NewHeadlessFetcher creates a HeadlessFetcher. A new browser process is
// launched per Fetch call and closed on every exit path, matching spec.md
// §4.6's "closed on every exit path including errors".
func NewHeadlessFetcher(userAgent string) *HeadlessFetcher {
	return &HeadlessFetcher{userAgent: userAgent}
}

func (h *HeadlessFetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 800),
			chromedp.UserAgent(h.userAgent),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	navCtx, navCancel := context.WithTimeout(browserCtx, navigationTimeout)
	defer navCancel()

	page := &model.Page{URL: pageURL}

	var (
		mu          sync.Mutex
		firstByte   time.Duration
		start       time.Time
		quiet       = make(chan struct{})
		quietTimer  *time.Timer
		quietClosed bool
	)
	resetQuiet := func() {
		mu.Lock()
		defer mu.Unlock()
		if quietClosed {
			return
		}
		if quietTimer != nil {
			quietTimer.Stop()
		}
		quietTimer = time.AfterFunc(networkQuietWindow, func() {
			mu.Lock()
			defer mu.Unlock()
			if !quietClosed {
				quietClosed = true
				close(quiet)
			}
		})
	}

	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response != nil && e.Response.URL == pageURL {
				mu.Lock()
				if firstByte == 0 && !start.IsZero() {
					firstByte = time.Since(start)
				}
				mu.Unlock()
			}
			resetQuiet()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			resetQuiet()
		}
	})

	var outerHTML string
	start = time.Now()
	resetQuiet()

	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		waitQuiet(quiet),
		chromedp.Sleep(lateScriptSleep),
		chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery),
	)
	if err != nil {
		logging.Warn("fetch: headless navigation failed",
			logging.Field("url", pageURL), logging.Field("error", err))
		return &Result{Page: page}, fmt.Errorf("fetch: headless navigate %s: %w", pageURL, err)
	}

	page.HTTPStatus = 200
	page.ContentType = "text/html"
	page.LoadTimeMs = time.Since(start).Milliseconds()
	mu.Lock()
	page.FirstByteTimeMs = firstByte.Milliseconds()
	mu.Unlock()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return &Result{Page: page}, fmt.Errorf("fetch: parsing headless DOM for %s: %w", pageURL, err)
	}

	e := extractFromDocument(doc, pageURL)
	applyExtracted(page, e)

	return &Result{Page: page, Links: e.Links}, nil
}

// waitQuiet is a chromedp.ActionFunc that blocks until the network has gone
// quiet for networkQuietWindow, or the action's context is cancelled.
func waitQuiet(quiet <-chan struct{}) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		select {
		case <-quiet:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
