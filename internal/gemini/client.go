// Package gemini はGemini REST APIによるブログ本文の生成クライアントを提供する。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/pubman/internal/model"
	"golang.org/x/time/rate"
)

// defaultEndpoint はGemini generateContent APIのベースエンドポイント。
const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// 生成パラメータは固定値とし、呼び出し側からは変更できない。
const (
	generationTemperature = 0.7
	generationTopK        = 40
	generationTopP        = 0.95
	generationMaxTokens   = 2048
)

// promptTemplate はタイトルを埋め込む固定のプロンプトテンプレート。
// Hinglish（ヒンディー語と英語の混合文体）でのHTML出力を指示し、
// 使用可能なタグ・禁止タグ・語数を明示する。
const promptTemplate = `Aap ek professional Hinglish blogger hain jo tech aur lifestyle topics par likhte hain.

"%s" - is topic par ek engaging blog post likhiye.

Rules (strictly follow karna):
1. Output SIRF HTML mein dena. Markdown, code fences, ya explanation bilkul nahi.
2. Sirf ye tags use karna: <h2>, <h3>, <h4>, <p>, <ul>, <ol>, <li>, <strong>, <em>, <a>, <br>.
3. <script>, <style>, <iframe>, <form> jaise tags kabhi nahi.
4. Title ko <h1> mein repeat mat karna, seedha content se shuru karna.
5. Post lagbhag 500-700 words ka hona chahiye.
6. Tone friendly aur conversational Hinglish mein rakhna.`

// generateRequest はgenerateContent APIのリクエストボディ。
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generateResponse はgenerateContent APIのレスポンスボディ。
// 本文は candidates[0].content.parts[0].text に格納される。
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// errorResponse はGemini APIのエラーレスポンスボディ。
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ClientConfig はGeminiクライアントの設定。
type ClientConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// RPMLimit は1分あたりのリクエスト数上限。0以下で無効。
	RPMLimit int

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint string
}

// Client はGemini generateContent APIのクライアント。
// 1回のGenerate呼び出しにつき外部呼び出しはちょうど1回で、再試行は行わない。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	// rpmGuard はクライアント側のRPMガード。nilの場合は無効。
	rpmGuard *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
// RPMLimitが正の場合、上流を呼ぶ前にローカルのRPMガードで拒否する。
func NewClient(config ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}

	var guard *rate.Limiter
	if config.RPMLimit > 0 {
		guard = rate.NewLimiter(rate.Limit(float64(config.RPMLimit)/60.0), config.RPMLimit)
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		rpmGuard:   guard,
	}
}

// Generate はタイトルからプロンプトを組み立て、生成されたHTML本文を返す。
// 失敗時は*model.APIErrorを返す:
//   - タイムアウト: TimeoutError
//   - 上流429: QuotaExceeded（レート制限扱い）
//   - その他の非2xx: UpstreamError
//   - 2xxだが本文パスが存在しない: GenerationEmptyError
func (c *Client) Generate(ctx context.Context, title string) (string, error) {
	if c.rpmGuard != nil && !c.rpmGuard.Allow() {
		c.logger.Warn("generation request rejected by local RPM guard",
			slog.Int("rpm_limit", c.config.RPMLimit),
		)
		return "", model.NewRateLimitError(time.Minute)
	}

	prompt := fmt.Sprintf(promptTemplate, title)

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     generationTemperature,
			TopK:            generationTopK,
			TopP:            generationTopP,
			MaxOutputTokens: generationMaxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", model.NewInternalError(fmt.Errorf("failed to encode generation request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", model.NewInternalError(fmt.Errorf("failed to create generation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("generation API timed out",
				slog.Duration("timeout", c.config.Timeout),
			)
			return "", model.NewTimeoutError("generation API", c.config.Timeout, err)
		}
		return "", model.NewUpstreamError("generation API", 0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewUpstreamError("generation API", resp.StatusCode, "failed to read response body")
	}

	c.logger.Debug("generation API responded",
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", model.NewQuotaExceededError("generation API")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.NewUpstreamError("generation API", resp.StatusCode, upstreamDetail(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", model.NewGenerationEmptyError()
	}

	// 期待するレスポンスパスの欠落は空文字列の成功ではなく失敗として扱う
	if len(genResp.Candidates) == 0 ||
		len(genResp.Candidates[0].Content.Parts) == 0 ||
		strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text) == "" {
		return "", model.NewGenerationEmptyError()
	}

	return stripCodeFence(genResp.Candidates[0].Content.Parts[0].Text), nil
}

// isTimeout はHTTPクライアントエラーがタイムアウト起因かを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// upstreamDetail はエラーレスポンスボディから人間可読なメッセージを抽出する。
// 構造化されていないボディの場合は固定のメッセージを返す。
func upstreamDetail(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return "unexpected response from upstream"
}

// stripCodeFence はモデルが指示に反して付与したMarkdownコードフェンスを除去する。
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```html")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
