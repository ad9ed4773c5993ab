package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は公開APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandCollect はページ画像コレクタを起動することを示す。
	CommandCollect Command = "collect"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "collect":
		return CommandCollect
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
