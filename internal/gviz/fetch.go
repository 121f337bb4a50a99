package gviz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "classfinder/internal/log"
)

const (
	DefaultBaseURL = "https://docs.google.com/spreadsheets/d"
	DefaultTimeout = 15 * time.Second

	FormatJSON = "json"
	FormatHTML = "html"

	maxBodyBytes = 8 << 20
)

// Observer receives one call per upstream request.
type Observer interface {
	ObserveFetch(tab string, d time.Duration, err error)
}

// Options configures a Fetcher.
type Options struct {
	// BaseURL is the spreadsheet endpoint prefix; the sheet ID and
	// "/gviz/tq" are appended to it.
	BaseURL string
	SheetID string
	// Format selects the GViz output: "json" (default) or "html".
	Format  string
	Timeout time.Duration

	// RatePerSecond and Burst bound outbound requests. Zero disables the
	// limiter.
	RatePerSecond float64
	Burst         int

	// Client overrides the HTTP client; its Timeout is replaced by
	// Options.Timeout.
	Client   *http.Client
	Observer Observer
}

// Fetcher downloads one sheet tab at a time from the GViz endpoint.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	baseURL  string
	sheetID  string
	format   string
	observer Observer
}

// NewFetcher creates a Fetcher from opts, filling unset fields with
// defaults.
func NewFetcher(opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}

	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.Timeout = opts.Timeout

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Fetcher{
		client:   client,
		limiter:  limiter,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		sheetID:  opts.SheetID,
		format:   opts.Format,
		observer: opts.Observer,
	}
}

// TabURL builds the GViz query URL for a tab. Numeric identifiers are
// sent as gid, anything else as the sheet name.
func (f *Fetcher) TabURL(tab string) string {
	q := url.Values{}
	q.Set("tqx", "out:"+f.format)
	if _, err := strconv.Atoi(tab); err == nil {
		q.Set("gid", tab)
	} else {
		q.Set("sheet", tab)
	}
	return f.baseURL + "/" + url.PathEscape(f.sheetID) + "/gviz/tq?" + q.Encode()
}

// Fetch downloads and decodes one tab. Errors are classified as
// ErrNotPublished, ErrAccessDenied, *HTTPError, ErrMalformedResponse or
// ErrTimeout; a cancelled ctx yields context.Canceled.
func (f *Fetcher) Fetch(ctx context.Context, tab string) (*Grid, error) {
	start := time.Now()
	g, err := f.fetch(ctx, tab)
	if f.observer != nil {
		f.observer.ObserveFetch(tab, time.Since(start), err)
	}
	return g, err
}

func (f *Fetcher) fetch(ctx context.Context, tab string) (*Grid, error) {
	if f.sheetID == "" {
		return nil, errors.New("sheet id is empty")
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, classifyTransportError(ctx, err)
			}
			// Wait refuses up front when the deadline cannot be met.
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}

	u := f.TabURL(tab)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "classfinder/1.0")

	appLog.Debug("gviz fetch start", "tab", tab, "format", f.format)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotPublished
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrAccessDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if f.format == FormatHTML {
		return ParseHTML(body)
	}
	return Unwrap(body)
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
