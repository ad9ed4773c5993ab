package collector

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Clipboard はシステムクリップボードへの書き込みインターフェース。
// 選択ロジックのテストでフェイクに差し替える。
type Clipboard interface {
	Write(text string) error
}

// SystemClipboard はOSのクリップボードを使うClipboard実装。
type SystemClipboard struct{}

// NewSystemClipboard はSystemClipboardを生成する。
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{}
}

// Write はテキストをシステムクリップボードへ書き込む。
func (c *SystemClipboard) Write(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Clipboard = (*SystemClipboard)(nil)
