// Package ratelimit はクライアント単位の固定ウィンドウレート制限を提供する。
//
// カウンタストアはインメモリ実装とRedis実装の2種類があり、
// どちらもLimiterインターフェースを満たす。
// サーバレス由来の設計に合わせ、カウンタはプロセス外部で保持できることを前提とする。
package ratelimit

import (
	"context"
	"time"
)

// Result は1回のレート制限チェックの結果を表す。
type Result struct {
	// Allowed はこのリクエストが許可されたかどうか。
	Allowed bool
	// Remaining は現在のウィンドウ内で残っているリクエスト数。
	Remaining int
	// RetryAfter は拒否された場合に次のウィンドウが開くまでの時間。
	RetryAfter time.Duration
}

// Limiter はクライアントIDごとのレート制限チェックのインターフェース。
// Check は読み取りとカウントアップを1回の呼び出しで行う。
// 外部APIを呼ぶ前に必ずチェックし、拒否時は上流コストを発生させない。
type Limiter interface {
	Check(ctx context.Context, clientID string) (Result, error)
}
