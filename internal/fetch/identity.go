package fetch

import "sync"

// defaultUserAgents is used when no pool is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Identity is the user-agent and optional proxy used for one attempt.
type Identity struct {
	UserAgent string
	Proxy     string
}

// IdentityPool rotates user-agents and proxies across attempts. A proxy
// reported bad is skipped for the lifetime of the pool; the coordinator
// creates one pool per run, which scopes the bad set to that run. Safe for
// concurrent use.
type IdentityPool struct {
	mu         sync.Mutex
	userAgents []string
	proxies    []string
	bad        map[string]struct{}
	uaNext     int
	proxyNext  int
}

// NewIdentityPool builds a pool. Empty userAgents falls back to the
// built-in list; empty proxies means direct connections.
func NewIdentityPool(userAgents, proxies []string) *IdentityPool {
	uas := userAgents
	if len(uas) == 0 {
		uas = defaultUserAgents
	}
	return &IdentityPool{
		userAgents: append([]string(nil), uas...),
		proxies:    append([]string(nil), proxies...),
		bad:        make(map[string]struct{}),
	}
}

// Next draws a fresh identity: the next user-agent and, when proxies are
// configured, the next proxy that has not been marked bad.
func (p *IdentityPool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := Identity{
		UserAgent: p.userAgents[p.uaNext%len(p.userAgents)],
	}
	p.uaNext++

	for range p.proxies {
		candidate := p.proxies[p.proxyNext%len(p.proxies)]
		p.proxyNext++
		if _, dead := p.bad[candidate]; dead {
			continue
		}
		id.Proxy = candidate
		break
	}
	return id
}

// MarkBad removes a proxy from rotation for the remainder of the pool's
// lifetime.
func (p *IdentityPool) MarkBad(proxy string) {
	if proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad[proxy] = struct{}{}
}

// GoodProxies reports how many configured proxies remain usable.
func (p *IdentityPool) GoodProxies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies) - len(p.bad)
}
