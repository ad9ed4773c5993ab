package collector

import (
	"encoding/json"
	"fmt"
)

// imageEntry はクリップボードへ書き出すJSON配列の1要素。
type imageEntry struct {
	URL string `json:"url"`
}

// Selection は収集した画像URLの選択状態を保持する。
// 選択の切り替えは純粋なビュー状態の変更であり、ネットワーク作用を持たない。
// 状態はセッション内限りで、保存されない。
type Selection struct {
	urls     []string
	selected map[int]bool
}

// NewSelection は収集済みURLから新しいSelectionを生成する。
// urlsは重複なしかつソート済みであることを前提とする（Scannerが保証する）。
func NewSelection(urls []string) *Selection {
	return &Selection{
		urls:     urls,
		selected: make(map[int]bool),
	}
}

// URLs は表示順のURL一覧を返す。
func (s *Selection) URLs() []string { return s.urls }

// Len は収集したURLの総数を返す。
func (s *Selection) Len() int { return len(s.urls) }

// Toggle は1始まりの番号で指定されたURLの選択状態を反転する。
// 範囲外の番号はエラー。
func (s *Selection) Toggle(index int) error {
	if index < 1 || index > len(s.urls) {
		return fmt.Errorf("index %d out of range (1-%d)", index, len(s.urls))
	}
	i := index - 1
	if s.selected[i] {
		delete(s.selected, i)
	} else {
		s.selected[i] = true
	}
	return nil
}

// IsSelected は1始まりの番号で指定されたURLが選択中かを返す。
func (s *Selection) IsSelected(index int) bool {
	return s.selected[index-1]
}

// SelectedCount は選択中のURL数を返す。
func (s *Selection) SelectedCount() int { return len(s.selected) }

// SelectedURLs は選択中のURLを表示順で返す。
func (s *Selection) SelectedURLs() []string {
	var urls []string
	for i, u := range s.urls {
		if s.selected[i] {
			urls = append(urls, u)
		}
	}
	return urls
}

// SerializeSelected は選択中のURLを{"url": ...}オブジェクトのJSON配列へ
// 直列化し、テキストと件数を返す。選択が空の場合は空文字列と0を返す。
func (s *Selection) SerializeSelected() (string, int) {
	urls := s.SelectedURLs()
	if len(urls) == 0 {
		return "", 0
	}

	entries := make([]imageEntry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, imageEntry{URL: u})
	}

	// 固定の構造体からの直列化のためエラーは発生しない
	text, _ := json.MarshalIndent(entries, "", "  ")
	return string(text), len(entries)
}
