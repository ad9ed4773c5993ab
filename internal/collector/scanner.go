// Package collector はページ画像コレクタを提供する。
//
// 指定されたページから<img>タグとCSSのbackground-image宣言に含まれる
// 画像URLを重複なく収集し、端末上で選択された部分集合を
// JSON配列としてシステムクリップボードへコピーする。
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/pubman/internal/security"
	"golang.org/x/net/html"
)

// Scanner はページから画像URL集合を収集するインターフェース。
// 返却されるスライスは重複なしかつソート済み。
// 同一内容のページに対して常に同じ集合を返す。
type Scanner interface {
	Collect(ctx context.Context, pageURL string) ([]string, error)
}

// cssURLPattern はCSSのurl(...)構文から参照先を取り出すパターン。
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// StaticScanner は静的HTMLの取得と解析によるScanner実装。
// ページ取得はSSRF防止付きHTTPクライアントで行い、
// <img>のsrc属性、インラインstyle属性、<style>ブロックから画像URLを抽出する。
type StaticScanner struct {
	guard   security.SSRFGuardService
	client  *http.Client
	maxSize int64
}

// NewStaticScanner はStaticScannerを生成する。
func NewStaticScanner(guard security.SSRFGuardService, timeout time.Duration, maxSize int64) *StaticScanner {
	return &StaticScanner{
		guard:   guard,
		client:  guard.NewSafeClient(timeout, maxSize),
		maxSize: maxSize,
	}
}

// Collect はページを取得して画像URLの集合を返す。
// 取得前にURLの安全性を検証し、危険なURLは取得せずに拒否する。
func (s *StaticScanner) Collect(ctx context.Context, pageURL string) ([]string, error) {
	if err := s.guard.ValidateURL(pageURL); err != nil {
		return nil, fmt.Errorf("unsafe page URL: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page fetch returned status %d", resp.StatusCode)
	}

	return extractImageURLs(base, io.LimitReader(resp.Body, s.maxSize))
}

// extractImageURLs はHTMLを走査して画像URLの集合を抽出する。
// 相対URLはページURLを基準に解決し、http/https以外は破棄する。
// 空の抽出結果は集合に含めない。
func extractImageURLs(base *url.URL, body io.Reader) ([]string, error) {
	seen := make(map[string]struct{})

	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		resolved, err := base.Parse(raw)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		seen[resolved.String()] = struct{}{}
	}

	addFromCSS := func(css string) {
		for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
			add(m[1])
		}
	}

	z := html.NewTokenizer(body)
	inStyle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				urls := make([]string, 0, len(seen))
				for u := range seen {
					urls = append(urls, u)
				}
				sort.Strings(urls)
				return urls, nil
			}
			return nil, fmt.Errorf("failed to parse HTML: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if t.Data == "style" && tt == html.StartTagToken {
				inStyle = true
			}
			for _, attr := range t.Attr {
				switch {
				case t.Data == "img" && attr.Key == "src":
					add(attr.Val)
				case attr.Key == "style":
					addFromCSS(attr.Val)
				}
			}

		case html.EndTagToken:
			t := z.Token()
			if t.Data == "style" {
				inStyle = false
			}

		case html.TextToken:
			if inStyle {
				addFromCSS(string(z.Text()))
			}
		}
	}
}

// compile-time interface check
var _ Scanner = (*StaticScanner)(nil)
