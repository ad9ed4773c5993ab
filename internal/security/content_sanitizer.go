// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は生成APIが返したHTMLをサニタイズし、
// 許可リストベースのポリシーで安全なタグと属性のみを通過させる。
// PageFetchGuardService はコレクタのページ取得をSSRF攻撃から保護する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 生成APIのレスポンスをブログAPIへ渡す前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 許可タグ（h2, h3, h4, p, ul, ol, li, strong, em, b, i, a, br）のみを通過させ、
	// script, style, iframe, formタグおよびon*イベント属性、style/class属性を除去する。
	// aタグにはhref, target, rel属性のみ許可され、
	// hrefのスキームはhttp, https, mailto, ftp, telと相対パスに限定される。
	// 許可されないタグは除去されるがテキスト内容は保持される（エスケープではなく削除）。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: h2, h3, h4, p, ul, ol, li, strong, em, b, i, a, br
//   - 許可属性: href, target, rel（aタグのみ）
//   - hrefのスキーム: http, https, mailto, ftp, tel および相対URL
//   - script, style, iframe, form, on*イベント属性, style/class属性は
//     許可リストに含めないことで常に除去される
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// 見出しはh2〜h4のみ。h1はタイトルと衝突するため本文では許可しない。
	p.AllowElements(
		"h2", "h3", "h4",
		"p", "ul", "ol", "li",
		"strong", "em", "b", "i",
		"br",
	)

	// aタグはhref, target, relのみ許可。
	p.AllowAttrs("href", "target", "rel").OnElements("a")

	// スキームの許可リストと相対パス。
	// javascript:, data: 等はここに含まれないため除去される。
	p.AllowURLSchemes("http", "https", "mailto", "ftp", "tel")
	p.AllowRelativeURLs(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
