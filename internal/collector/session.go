package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Session は画像URLの収集から選択・コピーまでの対話セッション。
// 入出力はio.Reader/io.Writerとして注入され、テストでは文字列バッファを使う。
type Session struct {
	scanner   Scanner
	clipboard Clipboard
	in        io.Reader
	out       io.Writer
}

// NewSession はSessionを生成する。
func NewSession(scanner Scanner, clipboard Clipboard, in io.Reader, out io.Writer) *Session {
	return &Session{
		scanner:   scanner,
		clipboard: clipboard,
		in:        in,
		out:       out,
	}
}

// Run はページの画像URLを収集し、対話的な選択ループを開始する。
// コマンド: 番号で選択切り替え、c/copyでクリップボードへコピー、
// l/listで一覧再表示、q/quitで終了。
func (s *Session) Run(ctx context.Context, pageURL string) error {
	fmt.Fprintf(s.out, "Collecting image URLs from %s ...\n", pageURL)

	urls, err := s.scanner.Collect(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to collect image URLs: %w", err)
	}
	if len(urls) == 0 {
		fmt.Fprintln(s.out, "No image URLs found.")
		return nil
	}

	sel := NewSelection(urls)
	s.printList(sel)
	s.printPrompt()

	reader := bufio.NewScanner(s.in)
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		switch line {
		case "":
			// 空行は無視

		case "q", "quit":
			return nil

		case "l", "list":
			s.printList(sel)

		case "c", "copy":
			s.copySelected(sel)

		default:
			s.toggle(sel, line)
		}
		s.printPrompt()
	}
	return reader.Err()
}

// toggle は番号入力による選択切り替えを処理する。
func (s *Session) toggle(sel *Selection, line string) {
	index, err := strconv.Atoi(line)
	if err != nil {
		fmt.Fprintf(s.out, "Unknown command %q. Enter a number, c(opy), l(ist) or q(uit).\n", line)
		return
	}
	if err := sel.Toggle(index); err != nil {
		fmt.Fprintf(s.out, "%v\n", err)
		return
	}
	mark := "deselected"
	if sel.IsSelected(index) {
		mark = "selected"
	}
	fmt.Fprintf(s.out, "[%d] %s (%d selected)\n", index, mark, sel.SelectedCount())
}

// copySelected は選択中のURLをクリップボードへコピーする。
// 選択が空の場合は何もせず通知のみ行う。
func (s *Session) copySelected(sel *Selection) {
	text, count := sel.SerializeSelected()
	if count == 0 {
		fmt.Fprintln(s.out, "No images selected.")
		return
	}
	if err := s.clipboard.Write(text); err != nil {
		fmt.Fprintf(s.out, "Failed to copy to clipboard: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Copied %d image URL(s) to clipboard.\n", count)
}

// printList は番号付きのURL一覧を選択状態とともに表示する。
func (s *Session) printList(sel *Selection) {
	fmt.Fprintf(s.out, "Found %d image URL(s):\n", sel.Len())
	for i, u := range sel.URLs() {
		mark := " "
		if sel.IsSelected(i + 1) {
			mark = "*"
		}
		fmt.Fprintf(s.out, " [%s] %2d. %s\n", mark, i+1, u)
	}
}

func (s *Session) printPrompt() {
	fmt.Fprint(s.out, "> ")
}
