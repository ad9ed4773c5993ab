// Package publish は公開パイプラインのオーケストレータを提供する。
//
// パイプラインは直線的なステージ列で構成される:
// 設定検証 → 入力検証 → 本文生成 → サニタイズ（任意）→ 投稿。
// いずれかのステージが失敗した時点で残りのステージは実行せず、
// 自動再試行も行わない。生成済みで未投稿の本文は破棄される。
package publish

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/pubman/internal/metrics"
	"github.com/hitoshi/pubman/internal/model"
)

// Generator は本文生成のインターフェース。
type Generator interface {
	Generate(ctx context.Context, title string) (string, error)
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Publisher はブログ投稿作成のインターフェース。
type Publisher interface {
	Publish(ctx context.Context, title, content string, tags []string, publish bool) (*model.PublishResult, error)
}

// CredentialChecker は必須設定の欠落検査のインターフェース。
// config.Configが満たす。
type CredentialChecker interface {
	MissingCredentials() []string
}

// Outcome はパイプライン成功時の結果。
type Outcome struct {
	Result *model.PublishResult
	// ContentLength は投稿した本文（サニタイズ後）の文字数。
	ContentLength int
}

// Service は公開パイプラインのオーケストレータ。
// 外部依存はすべてインターフェースとして注入され、テストではフェイクに差し替える。
type Service struct {
	generator Generator
	sanitizer Sanitizer
	publisher Publisher
	creds     CredentialChecker
	logger    *slog.Logger
	metrics   metrics.PipelineMetrics
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerがnilの場合、サニタイズステージはスキップされる。
func NewService(generator Generator, sanitizer Sanitizer, publisher Publisher, creds CredentialChecker, logger *slog.Logger, m metrics.PipelineMetrics) *Service {
	return &Service{
		generator: generator,
		sanitizer: sanitizer,
		publisher: publisher,
		creds:     creds,
		logger:    logger,
		metrics:   m,
	}
}

// Run はパイプラインを実行する。
// 失敗時は*model.APIErrorを返し、外部呼び出しは検証通過後にのみ発生する。
func (s *Service) Run(ctx context.Context, req *model.PublishRequest) (*Outcome, error) {
	// 1. 設定検証: 必須環境変数の欠落があれば外部APIは呼ばない
	if missing := s.creds.MissingCredentials(); len(missing) > 0 {
		return nil, s.fail(model.NewConfigError(missing))
	}

	// 2. 入力検証: タイトルとタグの検証は外部呼び出しより前
	req.Normalize()
	if apiErr := req.Validate(); apiErr != nil {
		return nil, s.fail(apiErr)
	}

	// 3. 本文生成
	start := time.Now()
	rawHTML, err := s.generator.Generate(ctx, req.Title)
	s.metrics.RecordStageLatency("generate", time.Since(start))
	s.recordUpstream("generation", err)
	if err != nil {
		return nil, s.failErr(err)
	}

	s.logger.Info("content generated",
		slog.Int("raw_length", len(rawHTML)),
	)

	// 4. サニタイズ（構成されている場合のみ）
	content := rawHTML
	if s.sanitizer != nil {
		start = time.Now()
		content = s.sanitizer.Sanitize(rawHTML)
		s.metrics.RecordStageLatency("sanitize", time.Since(start))

		if len(content) != len(rawHTML) {
			s.logger.Info("content sanitized",
				slog.Int("raw_length", len(rawHTML)),
				slog.Int("sanitized_length", len(content)),
			)
		}
	}

	// 5. 投稿。生成結果が完全に得られてから開始する（並行実行はしない）
	start = time.Now()
	result, err := s.publisher.Publish(ctx, req.Title, content, req.Tags, req.ShouldPublish())
	s.metrics.RecordStageLatency("publish", time.Since(start))
	s.recordUpstream("blog", err)
	if err != nil {
		// 生成済み本文はキャッシュせず破棄し、全体を失敗として報告する
		return nil, s.failErr(err)
	}

	s.logger.Info("post published",
		slog.String("post_id", result.PostID),
		slog.String("status", string(result.Status)),
	)

	s.metrics.RecordOutcome("success")
	return &Outcome{Result: result, ContentLength: len(content)}, nil
}

// recordUpstream は外部API呼び出しのステータスをメトリクスに記録する。
// 成功は200、失敗は上流が返したステータスが分かる場合のみ記録する。
func (s *Service) recordUpstream(service string, err error) {
	if err == nil {
		s.metrics.RecordUpstreamStatus(service, http.StatusOK)
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.UpstreamStatus != 0 {
		s.metrics.RecordUpstreamStatus(service, apiErr.UpstreamStatus)
	}
}

// fail はAPIErrorの結果を記録して返す。
func (s *Service) fail(apiErr *model.APIError) *model.APIError {
	s.metrics.RecordOutcome(apiErr.Code)
	s.logger.Warn("pipeline stage failed",
		slog.String("error_code", apiErr.Code),
		slog.String("kind", string(apiErr.Kind)),
	)
	return apiErr
}

// failErr は下位ステージから返されたエラーをAPIErrorに揃えて記録する。
func (s *Service) failErr(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return s.fail(apiErr)
	}
	return s.fail(model.NewInternalError(err))
}
