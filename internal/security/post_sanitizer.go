package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PostSanitizer は投稿本文のHTMLを表示可能な形に整える。
// bluemondayのポリシーは並行利用に対して安全。
type PostSanitizer struct {
	body    *bluemonday.Policy
	summary *bluemonday.Policy
}

// NewPostSanitizer はPostSanitizerを生成する。
//
// 本文ポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - a: 絶対URLのhrefのみ。target="_blank" と rel="noreferrer noopener" を付与
//   - img: httpsのsrcとaltのみ
func NewPostSanitizer() *PostSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "pre", "code", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("https")

	return &PostSanitizer{
		body:    p,
		summary: bluemonday.StrictPolicy(),
	}
}

// Body は投稿本文を許可リストに従ってサニタイズする。
func (s *PostSanitizer) Body(rawHTML string) string {
	return strings.TrimSpace(s.body.Sanitize(rawHTML))
}

// Summary はタグをすべて除去したプレーンテキストを最大maxRunes文字で返す。
// 切り詰めた場合は末尾に "…" を付ける。
func (s *PostSanitizer) Summary(rawHTML string, maxRunes int) string {
	text := html.UnescapeString(s.summary.Sanitize(rawHTML))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
