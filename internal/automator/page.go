// Package automator 实现课程自动化核心：
// 生命周期控制、双队列导航、按页分发和测验状态机。
// 每次页面加载相当于一次独立引导，所有遍历状态都外化在会话存储里。
package automator

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"amigolms/internal/session"
)

// Page 自动化面向的页面抽象
// 真实实现由 internal/browser 基于 chromedp 提供；测试用假页面
type Page interface {
	// URL 当前页面地址
	URL(ctx context.Context) (string, error)
	// HTML 当前页面完整HTML快照
	HTML(ctx context.Context) (string, error)
	// Navigate 导航到指定地址（整页加载，销毁页内状态）
	Navigate(ctx context.Context, url string) error
	// ClickControl 按控件扫描顺序点击第index个控件
	ClickControl(ctx context.Context, index int) (bool, error)
	// CheckRadio 选中指定 name/value 的单选框并派发 change 事件
	CheckRadio(ctx context.Context, name, value string) error
	// Evaluate 在页面里执行一段JS（作业文本填充等一次性操作）
	Evaluate(ctx context.Context, js string) error
	// Store 该页面所属会话的键值存储
	Store() session.Store
}

// parseHTML 把页面快照解析为可查询文档
func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// snapshot 拉取并解析当前页面
func snapshot(ctx context.Context, page Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return parseHTML(html)
}
