package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// pageGetter executes one plain HTTP attempt. Split out so the retry loop
// can be exercised in tests without network access.
type pageGetter interface {
	Get(ctx context.Context, rawURL string, id Identity, timeout time.Duration) (string, error)
}

// collyGetter implements pageGetter using a Colly collector per attempt,
// so each attempt carries its own user-agent and proxy.
type collyGetter struct{}

func (g *collyGetter) Get(ctx context.Context, rawURL string, id Identity, timeout time.Duration) (string, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	if id.UserAgent != "" {
		collector.UserAgent = id.UserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	transport, err := newHTTPTransport(id.Proxy)
	if err != nil {
		return "", err
	}
	collector.WithTransport(transport)

	var (
		body     string
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("response from %s: %w", rawURL, fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport(proxy string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport, nil
}
