package automator

import (
	"context"
	"time"
)

// pollUntil 固定间隔的有界轮询
// 宿主页面不会主动发出事件，只能反复探测；固定间隔加最大次数，
// 不做指数退避。谓词命中返回 true，次数用尽或 ctx 取消返回 false
func pollUntil(ctx context.Context, interval time.Duration, maxAttempts int, fn func() bool) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		if fn() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}
