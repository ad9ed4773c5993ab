// Package blogger はBlogger v3 APIによる投稿作成クライアントを提供する。
package blogger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/pubman/internal/model"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultAPIBaseURL = "https://www.googleapis.com/blogger/v3"
)

// ClientConfig はBloggerクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string
	BlogID       string
	Timeout      time.Duration

	// テスト用にオーバーライド可能なURL
	TokenURL   string
	APIBaseURL string
}

// Client はBlogger v3 APIのクライアント。
// 投稿作成のたびにリフレッシュトークンをアクセストークンに交換する。
//
// Publishは冪等ではない: 同一引数で2回呼ぶと2件の投稿が作成される
// （重複排除や冪等キーは実装していない）。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenErrorResponse はトークンエンドポイントのエラーレスポンス。
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// insertPostRequest はposts.insertのリクエストボディ。
type insertPostRequest struct {
	Kind    string   `json:"kind"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Labels  []string `json:"labels,omitempty"`
}

// insertPostResponse はposts.insertのレスポンスボディ。
type insertPostResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Published string `json:"published"`
	Title     string `json:"title"`
}

// Publish はブログへ投稿を作成し、投稿メタデータを返す。
// publishがfalseの場合は下書きとして作成する。
// 失敗時は*model.APIErrorを返す:
//   - トークン交換の拒否: AuthError
//   - 投稿APIの401/403: AuthError
//   - 投稿APIの429: QuotaExceeded（レート制限扱い）
//   - その他の非2xx: UpstreamError（ステータスパススルー）
//   - タイムアウト: TimeoutError
func (c *Client) Publish(ctx context.Context, title, content string, tags []string, publish bool) (*model.PublishResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	accessToken, err := c.exchangeRefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	return c.insertPost(ctx, accessToken, title, content, tags, publish)
}

// exchangeRefreshToken は保存済みリフレッシュトークンをアクセストークンに交換する。
func (c *Client) exchangeRefreshToken(ctx context.Context) (string, error) {
	data := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"refresh_token": {c.config.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", model.NewInternalError(fmt.Errorf("failed to create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", model.NewTimeoutError("blog API", c.config.Timeout, err)
		}
		return "", model.NewAuthError("token endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewAuthError("failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr tokenErrorResponse
		detail := "token exchange rejected"
		if err := json.Unmarshal(body, &tokenErr); err == nil && tokenErr.Error != "" {
			detail = tokenErr.Error
		}
		c.logger.Error("OAuth2 token exchange failed",
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", detail),
		)
		return "", model.NewAuthError(detail)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", model.NewAuthError("malformed token response")
	}
	if tokenResp.AccessToken == "" {
		return "", model.NewAuthError("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// insertPost はposts.insertを呼び出して投稿を作成する。
func (c *Client) insertPost(ctx context.Context, accessToken, title, content string, tags []string, publish bool) (*model.PublishResult, error) {
	payload, err := json.Marshal(insertPostRequest{
		Kind:    "blogger#post",
		Title:   title,
		Content: content,
		Labels:  tags,
	})
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("failed to encode post request: %w", err))
	}

	// isDraftは「公開しない」のフラグなのでpublishの否定を渡す
	postURL := fmt.Sprintf("%s/blogs/%s/posts?isDraft=%s",
		c.config.APIBaseURL, c.config.BlogID, strconv.FormatBool(!publish))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(payload))
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("failed to create post request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("blog API timed out",
				slog.Duration("timeout", c.config.Timeout),
			)
			return nil, model.NewTimeoutError("blog API", c.config.Timeout, err)
		}
		return nil, model.NewUpstreamError("blog API", 0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamError("blog API", resp.StatusCode, "failed to read response body")
	}

	c.logger.Debug("blog API responded",
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, model.NewAuthError(fmt.Sprintf("post creation rejected with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, model.NewQuotaExceededError("blog API")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, model.NewUpstreamError("blog API", resp.StatusCode, upstreamDetail(body))
	}

	var postResp insertPostResponse
	if err := json.Unmarshal(body, &postResp); err != nil {
		return nil, model.NewUpstreamError("blog API", resp.StatusCode, "malformed post response")
	}

	// idとurlは上流の値を一切加工せずパススルーする
	return &model.PublishResult{
		PostID:    postResp.ID,
		URL:       postResp.URL,
		Status:    normalizeStatus(postResp.Status, publish),
		Published: postResp.Published,
		Title:     postResp.Title,
	}, nil
}

// normalizeStatus は上流のステータス表記をlive|draftに正規化する。
// 上流がステータスを返さない場合はpublishフラグから導出する。
func normalizeStatus(upstream string, publish bool) model.PostStatus {
	switch strings.ToLower(upstream) {
	case "live":
		return model.PostStatusLive
	case "draft":
		return model.PostStatusDraft
	}
	if publish {
		return model.PostStatusLive
	}
	return model.PostStatusDraft
}

// upstreamErrorResponse はBlogger APIのエラーレスポンスボディ。
type upstreamErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// upstreamDetail はエラーレスポンスボディから人間可読なメッセージを抽出する。
func upstreamDetail(body []byte) string {
	var errResp upstreamErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return "unexpected response from upstream"
}

// isTimeout はHTTPクライアントエラーがタイムアウト起因かを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
