package fetch

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Credentials log a browser session into a paywalled site.
type Credentials struct {
	Username string
	Password string
}

// BrowserOptions configures a BrowserSession.
type BrowserOptions struct {
	Headless    bool
	LoginURL    string
	LoginWait   time.Duration
	PageTimeout time.Duration
}

func (o BrowserOptions) withDefaults() BrowserOptions {
	if o.LoginURL == "" {
		o.LoginURL = "https://www.hs.fi"
	}
	if o.LoginWait == 0 {
		o.LoginWait = 10 * time.Second
	}
	if o.PageTimeout == 0 {
		o.PageTimeout = 60 * time.Second
	}
	return o
}

// BrowserSession is a logged-in headless browser used to fetch Helsingin
// Sanomat articles. It must be closed.
type BrowserSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

// HSOpener returns an Opener that logs a new browser session in on each call.
func HSOpener(creds Credentials, opts BrowserOptions) Opener {
	return func(ctx context.Context) (Session, error) {
		return OpenBrowserSession(ctx, creds, opts)
	}
}

// OpenBrowserSession launches a browser and logs in.
func OpenBrowserSession(ctx context.Context, creds Credentials, opts BrowserOptions) (*BrowserSession, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	bctx, cancel := chromedp.NewContext(allocCtx)

	s := &BrowserSession{ctx: bctx, cancel: cancel, allocCancel: allocCancel, timeout: opts.PageTimeout}
	// The browser lives as long as the context of the first Run.
	if err := chromedp.Run(bctx); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "fetch: start browser")
	}
	if err := s.login(ctx, creds, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *BrowserSession) login(ctx context.Context, creds Credentials, opts BrowserOptions) error {
	zap.L().Info("logging into hs")

	lctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute+opts.LoginWait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(lctx, chromedp.Navigate(opts.LoginURL)); err != nil {
		return eris.Wrap(err, "fetch: open login page")
	}

	if err := dismissConsent(lctx); err != nil {
		zap.L().Warn("failed to close cookie consent form", zap.Error(err))
	}

	err := chromedp.Run(lctx,
		chromedp.WaitReady(`a[href*=start-login]`, chromedp.ByQuery),
		chromedp.Click(`a[href*=start-login]`, chromedp.ByQuery),
		chromedp.WaitVisible(`#username`, chromedp.ByQuery),
		chromedp.SendKeys(`#username`, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`#password`, creds.Password, chromedp.ByQuery),
		chromedp.Click(`button[type=submit]`, chromedp.ByQuery),
		chromedp.Sleep(opts.LoginWait),
	)
	if err != nil {
		return eris.Wrap(err, "fetch: log in")
	}

	zap.L().Info("logged in")
	return nil
}

func dismissConsent(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var frames []*cdp.Node
	if err := chromedp.Run(cctx,
		chromedp.Nodes(`iframe[title='SP Consent Message']`, &frames, chromedp.ByQuery),
	); err != nil {
		return err
	}
	return chromedp.Run(cctx,
		chromedp.Click(`button[title='OK']`, chromedp.ByQuery, chromedp.FromNode(frames[0])),
	)
}

// Fetch opens url in the logged-in browser and extracts its text.
func (s *BrowserSession) Fetch(ctx context.Context, articleURL string) (*Result, error) {
	zap.L().Info("fetching", zap.String("url", articleURL))

	fctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	var frames []*cdp.Node
	err := chromedp.Run(fctx,
		chromedp.Navigate(articleURL),
		chromedp.WaitReady(`#page-main-content`, chromedp.ByQuery),
		chromedp.Nodes(`#page-main-content + iframe`, &frames, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: load %s", articleURL)
	}

	// Paid content is sometimes rendered inside an iframe next to the main content.
	if len(frames) > 0 {
		err = chromedp.Run(fctx,
			chromedp.WaitReady(`div.paywall-content, div#paid-content`, chromedp.ByQuery, chromedp.FromNode(frames[0])),
			chromedp.OuterHTML(`html`, &html, chromedp.ByQuery, chromedp.FromNode(frames[0])),
		)
	} else {
		err = chromedp.Run(fctx, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read %s", articleURL)
	}

	return ParseHS(html)
}

// Close shuts the browser down.
func (s *BrowserSession) Close() error {
	s.cancel()
	s.allocCancel()
	return nil
}

var blankLines = regexp.MustCompile(`\n\n+`)

const (
	hsNoise  = "aside, section.article-body + div, div.article-info, div.related-articles, div.article-actions, div.paywallWrapper"
	hsBlocks = "h1, h2, h3, h4, h5, h6, p, div"
)

// ParseHS extracts article text and person links from an HS article page.
func ParseHS(html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse hs page")
	}

	persons := []string{}
	doc.Find(".article-personlink").Each(func(_ int, el *goquery.Selection) {
		persons = append(persons, el.Text())
	})

	root := doc.Selection
	if main := doc.Find("main").First(); main.Length() > 0 {
		root = main
	}
	if article := root.Find("div#page-main-content + article").First(); article.Length() > 0 {
		root = article
	} else if content := root.Find("div#page-main-content").First(); content.Length() > 0 {
		root = content
	}

	root.Find(hsNoise).Remove()
	root.Find(hsBlocks).Each(func(_ int, el *goquery.Selection) {
		el.AfterHtml("\n\n")
	})

	text := strings.ReplaceAll(root.Text(), "\u00ad", "")
	text = blankLines.ReplaceAllString(text, "\n\n")

	return &Result{Content: text, Persons: persons}, nil
}
