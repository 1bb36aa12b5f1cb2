// Package security は外部コンテンツ取得時の安全対策を提供する。
// 投稿フィードのURL検証（SSRF対策）と、投稿本文HTMLのサニタイズを扱う。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrDisallowedScheme はhttp/https以外のスキームであることを示す。
	ErrDisallowedScheme = errors.New("disallowed scheme")
	// ErrBlockedAddress は内部ネットワーク宛てのURLであることを示す。
	ErrBlockedAddress = errors.New("blocked address")
	// ErrHostNotAllowed は許可リストにないホストであることを示す。
	ErrHostNotAllowed = errors.New("host not allowed")
)

// DefaultFeedHosts は投稿フィードの取得を許可するホスト。サブドメインも許可される。
var DefaultFeedHosts = []string{"reddit.com", "youtube.com"}

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes はDNS解決前に拒否するアドレス範囲。
// 解決後のアドレスはsafeurlのDialer側で検証される。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドメタデータを含む
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

var blockedHostnames = []string{"localhost", "metadata.google.internal"}

// URLGuard は外部URLへのアクセス可否を判定し、安全なHTTPクライアントを生成する。
type URLGuard struct {
	allowedHosts []string
}

// NewURLGuard はURLGuardを生成する。allowedHostsが空の場合は公開アドレスであれば任意のホストを許可する。
func NewURLGuard(allowedHosts ...string) *URLGuard {
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &URLGuard{allowedHosts: hosts}
}

// Client はプライベートIP・ループバック・リンクローカル宛ての接続を
// 接続時点で拒否するHTTPクライアントを返す。DNS再バインディングにも対応する。
func (g *URLGuard) Client(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// Validate はURLを静的に検証する。DNS解決は行わない。
func (g *URLGuard) Validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrDisallowedScheme, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
			}
		}
	}

	for _, h := range blockedHostnames {
		if host == h {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
	}

	if !g.hostAllowed(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}

	return nil
}

func (g *URLGuard) hostAllowed(host string) bool {
	if len(g.allowedHosts) == 0 {
		return true
	}
	for _, h := range g.allowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
