package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/hitoshi/pubman/internal/security"
)

// collectScript はブラウザ内で実行する画像URL収集スクリプト。
// document.imagesと全要素の算出済みbackground-imageを走査する。
// JavaScriptが挿入した画像もここで拾える。
const collectScript = `(() => {
	const urls = new Set();
	for (const img of document.images) {
		if (img.src) {
			urls.add(img.src);
		}
	}
	const pattern = /url\(["']?([^"')]+)["']?\)/g;
	for (const el of document.querySelectorAll("*")) {
		const bg = getComputedStyle(el).backgroundImage;
		if (!bg || bg === "none") {
			continue;
		}
		for (const m of bg.matchAll(pattern)) {
			if (m[1]) {
				urls.add(m[1]);
			}
		}
	}
	return Array.from(urls);
})()`

// BrowserScanner はヘッドレスブラウザによるScanner実装。
// 静的HTMLには現れない、レンダリング後のDOMと算出スタイルを対象にする。
// chromedpが起動するChromiumが必要。
type BrowserScanner struct {
	guard   security.SSRFGuardService
	timeout time.Duration
}

// NewBrowserScanner はBrowserScannerを生成する。
func NewBrowserScanner(guard security.SSRFGuardService, timeout time.Duration) *BrowserScanner {
	return &BrowserScanner{
		guard:   guard,
		timeout: timeout,
	}
}

// Collect はヘッドレスブラウザでページを開き、画像URLの集合を返す。
func (b *BrowserScanner) Collect(ctx context.Context, pageURL string) ([]string, error) {
	if err := b.guard.ValidateURL(pageURL); err != nil {
		return nil, fmt.Errorf("unsafe page URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// コンテナ環境向けのChromium起動オプション
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var urls []string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.EvaluateAsDevTools(collectScript, &urls),
	)
	if err != nil {
		return nil, fmt.Errorf("browser scan failed: %w", err)
	}

	// ブラウザ側のSetで重複は除去済み。表示順を安定させるためソートのみ行う
	sort.Strings(urls)
	return urls, nil
}

// compile-time interface check
var _ Scanner = (*BrowserScanner)(nil)
