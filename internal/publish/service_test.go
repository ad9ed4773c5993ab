package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/pubman/internal/metrics"
	"github.com/hitoshi/pubman/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeGenerator はGeneratorのフェイク実装。
type fakeGenerator struct {
	generateFunc func(ctx context.Context, title string) (string, error)
	calls        int
}

func (f *fakeGenerator) Generate(ctx context.Context, title string) (string, error) {
	f.calls++
	if f.generateFunc != nil {
		return f.generateFunc(ctx, title)
	}
	return "<h2>Intro</h2><p>generated content</p>", nil
}

// fakePublisher はPublisherのフェイク実装。
type fakePublisher struct {
	publishFunc func(ctx context.Context, title, content string, tags []string, publish bool) (*model.PublishResult, error)
	calls       int
	lastContent string
	lastPublish bool
	lastTags    []string
}

func (f *fakePublisher) Publish(ctx context.Context, title, content string, tags []string, publish bool) (*model.PublishResult, error) {
	f.calls++
	f.lastContent = content
	f.lastPublish = publish
	f.lastTags = tags
	if f.publishFunc != nil {
		return f.publishFunc(ctx, title, content, tags, publish)
	}
	return &model.PublishResult{
		PostID:    "post-123",
		URL:       "https://blog.example.com/p/post.html",
		Status:    model.PostStatusLive,
		Published: "2025-08-31T10:00:00+09:00",
		Title:     title,
	}, nil
}

// fakeSanitizer はSanitizerのフェイク実装。
type fakeSanitizer struct {
	calls int
}

func (f *fakeSanitizer) Sanitize(rawHTML string) string {
	f.calls++
	return strings.ReplaceAll(rawHTML, "<script>alert(1)</script>", "")
}

// fakeCreds はCredentialCheckerのフェイク実装。
type fakeCreds struct {
	missing []string
}

func (f *fakeCreds) MissingCredentials() []string { return f.missing }

func testService(gen *fakeGenerator, san Sanitizer, pub *fakePublisher, creds *fakeCreds) *Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := metrics.NewCollector(prometheus.NewRegistry())
	return NewService(gen, san, pub, creds, logger, m)
}

func validRequest() *model.PublishRequest {
	return &model.PublishRequest{
		Title: "My First Hinglish Blog Post",
		Tags:  []string{"tech", "hindi"},
	}
}

// TestRunSuccess は正常系で全ステージが順に実行されることを検証する。
func TestRunSuccess(t *testing.T) {
	gen := &fakeGenerator{}
	san := &fakeSanitizer{}
	pub := &fakePublisher{}
	svc := testService(gen, san, pub, &fakeCreds{})

	outcome, err := svc.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if gen.calls != 1 || san.calls != 1 || pub.calls != 1 {
		t.Errorf("calls: generate=%d sanitize=%d publish=%d, expected 1 each", gen.calls, san.calls, pub.calls)
	}
	if outcome.Result.PostID != "post-123" {
		t.Errorf("PostID = %q", outcome.Result.PostID)
	}
	if outcome.ContentLength != len(pub.lastContent) {
		t.Errorf("ContentLength = %d, expected %d", outcome.ContentLength, len(pub.lastContent))
	}
	if !pub.lastPublish {
		t.Error("publish should default to true")
	}
}

// TestRunValidationBeforeUpstream は不正入力が外部呼び出しの前に拒否されることを検証する。
func TestRunValidationBeforeUpstream(t *testing.T) {
	tests := []struct {
		name string
		req  *model.PublishRequest
	}{
		{name: "短すぎるタイトル", req: &model.PublishRequest{Title: "abc"}},
		{name: "空白だけのタイトル", req: &model.PublishRequest{Title: "        "}},
		{name: "長すぎるタイトル", req: &model.PublishRequest{Title: strings.Repeat("あ", 201)}},
		{
			name: "タグが多すぎる",
			req: &model.PublishRequest{
				Title: "Valid Title Here",
				Tags:  []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"},
			},
		},
		{
			name: "空白だけのタグ",
			req:  &model.PublishRequest{Title: "Valid Title Here", Tags: []string{"tech", "   "}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			pub := &fakePublisher{}
			svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

			_, err := svc.Run(context.Background(), tt.req)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %v", err)
			}
			if apiErr.Kind != model.KindValidation {
				t.Errorf("Kind = %s, expected validation", apiErr.Kind)
			}
			if gen.calls != 0 || pub.calls != 0 {
				t.Errorf("upstream calls: generate=%d publish=%d, expected 0 each", gen.calls, pub.calls)
			}
		})
	}
}

// TestRunTitleBoundaries はトリム後のタイトル境界値を検証する。
func TestRunTitleBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{name: "5文字ちょうどは許可", title: "abcde", wantErr: false},
		{name: "トリム後5文字は許可", title: "  abcde  ", wantErr: false},
		{name: "4文字は拒否", title: "abcd", wantErr: true},
		{name: "200文字ちょうどは許可", title: strings.Repeat("a", 200), wantErr: false},
		{name: "201文字は拒否", title: strings.Repeat("a", 201), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			pub := &fakePublisher{}
			svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

			_, err := svc.Run(context.Background(), &model.PublishRequest{Title: tt.title})
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && gen.calls != 0 {
				t.Error("rejected request must not reach the generator")
			}
		})
	}
}

// TestRunConfigErrorBeforeUpstream は設定欠落が外部呼び出しの前に検出されることを検証する。
func TestRunConfigErrorBeforeUpstream(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &fakePublisher{}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{missing: []string{"GEMINI_API_KEY"}})

	_, err := svc.Run(context.Background(), validRequest())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Kind != model.KindConfig {
		t.Errorf("Kind = %s, expected config", apiErr.Kind)
	}
	if !strings.Contains(apiErr.Message, "GEMINI_API_KEY") {
		t.Errorf("Message = %q, expected to name the missing variable", apiErr.Message)
	}
	if gen.calls != 0 || pub.calls != 0 {
		t.Error("config failure must not reach any upstream")
	}
}

// TestRunGenerationFailureSkipsPublish は生成失敗時に投稿APIが呼ばれないことを検証する。
func TestRunGenerationFailureSkipsPublish(t *testing.T) {
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context, title string) (string, error) {
			return "", model.NewGenerationEmptyError()
		},
	}
	pub := &fakePublisher{}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

	_, err := svc.Run(context.Background(), validRequest())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Kind != model.KindGenerationEmpty {
		t.Errorf("Kind = %s, expected generation_empty", apiErr.Kind)
	}
	if pub.calls != 0 {
		t.Errorf("publish calls = %d, must never publish after generation failure", pub.calls)
	}
}

// TestRunPublishFailureDiscardsContent は投稿失敗が全体失敗として返ることを検証する。
// 部分的成功（生成済み・未投稿）は存在しない。
func TestRunPublishFailureDiscardsContent(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &fakePublisher{
		publishFunc: func(ctx context.Context, title, content string, tags []string, publish bool) (*model.PublishResult, error) {
			return nil, model.NewAuthError("invalid_grant")
		},
	}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

	outcome, err := svc.Run(context.Background(), validRequest())
	if outcome != nil {
		t.Error("failed pipeline must not return a partial outcome")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Kind != model.KindAuth {
		t.Errorf("Kind = %s, expected auth", apiErr.Kind)
	}
}

// TestRunSanitizerApplied はサニタイズ結果が投稿に使われることを検証する。
func TestRunSanitizerApplied(t *testing.T) {
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context, title string) (string, error) {
			return "<p>safe</p><script>alert(1)</script>", nil
		},
	}
	pub := &fakePublisher{}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

	if _, err := svc.Run(context.Background(), validRequest()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(pub.lastContent, "<script>") {
		t.Errorf("published content = %q, script must be sanitized out", pub.lastContent)
	}
}

// TestRunWithoutSanitizer はsanitizer未構成時に生成結果がそのまま投稿されることを検証する。
func TestRunWithoutSanitizer(t *testing.T) {
	raw := "<p>raw content</p><div>unfiltered</div>"
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context, title string) (string, error) {
			return raw, nil
		},
	}
	pub := &fakePublisher{}
	svc := testService(gen, nil, pub, &fakeCreds{})

	if _, err := svc.Run(context.Background(), validRequest()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pub.lastContent != raw {
		t.Errorf("published content = %q, expected raw pass-through", pub.lastContent)
	}
}

// TestRunDraftFlag はpublish=falseが投稿クライアントへ伝播することを検証する。
func TestRunDraftFlag(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &fakePublisher{}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

	draft := false
	req := validRequest()
	req.Publish = &draft

	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pub.lastPublish {
		t.Error("publish=false should propagate to the publisher")
	}
}

// TestRunTagsTrimmed はタグが正規化されて投稿に渡ることを検証する。
func TestRunTagsTrimmed(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &fakePublisher{}
	svc := testService(gen, &fakeSanitizer{}, pub, &fakeCreds{})

	req := &model.PublishRequest{
		Title: "Valid Title Here",
		Tags:  []string{"  tech ", "hindi"},
	}
	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(pub.lastTags) != 2 || pub.lastTags[0] != "tech" || pub.lastTags[1] != "hindi" {
		t.Errorf("tags = %v, expected trimmed [tech hindi]", pub.lastTags)
	}
}
