package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// 入力検証の境界値
const (
	// TitleMinLength はタイトルの最小文字数。
	TitleMinLength = 5
	// TitleMaxLength はタイトルの最大文字数。
	TitleMaxLength = 200
	// MaxTagCount は1投稿あたりのタグ数の上限。
	MaxTagCount = 10
)

// PublishRequest は /api/publish へのリクエストボディを表す。
// publish を省略した場合は公開（true）として扱う。
type PublishRequest struct {
	Title   string   `json:"title"`
	Tags    []string `json:"tags,omitempty"`
	Publish *bool    `json:"publish,omitempty"`
}

// ShouldPublish は下書きではなく即時公開するかどうかを返す。
func (r *PublishRequest) ShouldPublish() bool {
	return r.Publish == nil || *r.Publish
}

// Normalize はタイトルと各タグの前後の空白を取り除く。
// Validate の前に必ず呼ぶこと。
func (r *PublishRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	for i := range r.Tags {
		r.Tags[i] = strings.TrimSpace(r.Tags[i])
	}
}

// Validate は正規化済みリクエストを検証する。
// 外部APIを呼ぶ前に必ず通過させ、違反はValidationErrorとして返す。
func (r *PublishRequest) Validate() *APIError {
	length := utf8.RuneCountInString(r.Title)
	if length < TitleMinLength || length > TitleMaxLength {
		return NewValidationError(fmt.Sprintf(
			"Title must be between %d and %d characters", TitleMinLength, TitleMaxLength))
	}
	if len(r.Tags) > MaxTagCount {
		return NewValidationError(fmt.Sprintf(
			"A post can carry at most %d tags", MaxTagCount))
	}
	for _, tag := range r.Tags {
		if tag == "" {
			return NewValidationError("Tags must not be empty")
		}
	}
	return nil
}

// PostStatus は投稿の公開状態を表す。
type PostStatus string

const (
	// PostStatusLive は公開済みの状態。
	PostStatusLive PostStatus = "live"
	// PostStatusDraft は下書きの状態。
	PostStatusDraft PostStatus = "draft"
)

// PublishResult はブログAPIが返した投稿メタデータを表す。
// PostIDとURLは上流の値を一切加工せずそのまま保持する。
type PublishResult struct {
	PostID    string
	URL       string
	Status    PostStatus
	Published string
	Title     string
}
