// Package browser 基于 chromedp 驱动真实浏览器
// 对外提供自动化所需的页面操作和会话存储实现
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"amigolms/internal/automator"
	"amigolms/internal/config"
	"amigolms/internal/session"
)

// 时间常量
const (
	browserTimeout   = 30 * time.Minute       // 浏览器总超时
	pageLoadWaitTime = 3 * time.Second        // 页面加载等待时间
	shortWaitTime    = 500 * time.Millisecond // 短等待
)

// Browser 浏览器执行器
// 实现 automator.Page，自动化核心通过该抽象触达页面
type Browser struct {
	cfg           *config.Config
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	ctx           context.Context
	cancel        context.CancelFunc
	timeoutCancel context.CancelFunc // 超时取消函数（独立保存）
}

var _ automator.Page = (*Browser)(nil)

// New 创建浏览器执行器
func New(cfg *config.Config) *Browser {
	return &Browser{cfg: cfg}
}

// Start 启动浏览器
func (b *Browser) Start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false), // 需要用户手动登录，保持有头
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"),
	)

	// 设置Chrome路径
	if b.cfg.ChromeBinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromeBinaryPath))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.ctx, b.cancel = chromedp.NewContext(b.allocCtx)

	// 设置超时（保存超时取消函数，避免覆盖原始 cancel）
	b.ctx, b.timeoutCancel = context.WithTimeout(b.ctx, browserTimeout)

	return nil
}

// Stop 关闭浏览器
func (b *Browser) Stop() {
	slog.Debug("正在关闭浏览器")

	// 先取消超时 context
	if b.timeoutCancel != nil {
		b.timeoutCancel()
		b.timeoutCancel = nil
	}

	// 再取消 chromedp context（会关闭浏览器页面）
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	// 等待一下让浏览器有时间关闭
	time.Sleep(shortWaitTime)

	// 最后取消 allocator（会杀掉 chrome 进程）
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}

	slog.Debug("浏览器已关闭")
}

// OpenHome 打开LMS首页，供用户手动登录
func (b *Browser) OpenHome() error {
	err := chromedp.Run(b.ctx,
		chromedp.Navigate(b.cfg.BaseURL),
		chromedp.Sleep(pageLoadWaitTime),
	)
	if err != nil {
		return fmt.Errorf("打开首页失败: %w", err)
	}
	return nil
}

// checkCancel 检查外部取消
func (b *Browser) checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// URL 当前页面地址
func (b *Browser) URL(ctx context.Context) (string, error) {
	if err := b.checkCancel(ctx); err != nil {
		return "", err
	}

	var url string
	if err := chromedp.Run(b.ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("获取页面地址失败: %w", err)
	}
	return url, nil
}

// HTML 当前页面完整HTML快照
func (b *Browser) HTML(ctx context.Context) (string, error) {
	if err := b.checkCancel(ctx); err != nil {
		return "", err
	}

	var html string
	if err := chromedp.Run(b.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("获取页面HTML失败: %w", err)
	}
	return html, nil
}

// Navigate 导航到指定地址
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.checkCancel(ctx); err != nil {
		return err
	}

	if err := chromedp.Run(b.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("导航失败: %w", err)
	}
	return nil
}

// ClickControl 按控件扫描顺序点击第index个控件
// 控件序必须与静态快照扫描一致，因此用同一个选择器在页面里重新枚举
func (b *Browser) ClickControl(ctx context.Context, index int) (bool, error) {
	if err := b.checkCancel(ctx); err != nil {
		return false, err
	}

	js := fmt.Sprintf(`
	(function() {
		var controls = document.querySelectorAll(%q);
		var target = controls[%d];
		if (!target || target.disabled) {
			return false;
		}
		target.click();
		return true;
	})()`, automator.ControlQuery, index)

	var clicked bool
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, fmt.Errorf("点击控件失败: %w", err)
	}
	return clicked, nil
}

// CheckRadio 选中指定 name/value 的单选框并派发 change 事件
func (b *Browser) CheckRadio(ctx context.Context, name, value string) error {
	if err := b.checkCancel(ctx); err != nil {
		return err
	}

	nameJSON, _ := json.Marshal(name)
	valueJSON, _ := json.Marshal(value)
	js := fmt.Sprintf(`
	(function() {
		var name = %s;
		var value = %s;
		var radios = document.querySelectorAll('input[type="radio"]');
		for (var i = 0; i < radios.length; i++) {
			var radio = radios[i];
			if ((radio.name || '') !== name || radio.value !== value) continue;
			if (radio.disabled) continue;
			radio.checked = true;
			radio.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
		return false;
	})()`, nameJSON, valueJSON)

	var checked bool
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(js, &checked)); err != nil {
		return fmt.Errorf("选中单选框失败: %w", err)
	}
	if !checked {
		return fmt.Errorf("未找到单选框 name=%s value=%s", name, value)
	}
	return nil
}

// Evaluate 在页面里执行一段JS，不关心返回值
func (b *Browser) Evaluate(ctx context.Context, js string) error {
	if err := b.checkCancel(ctx); err != nil {
		return err
	}

	if err := chromedp.Run(b.ctx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("执行脚本失败: %w", err)
	}
	return nil
}

// EvaluateString 执行JS并取回字符串结果（填写脚本返回JSON）
func (b *Browser) EvaluateString(ctx context.Context, js string) (string, error) {
	if err := b.checkCancel(ctx); err != nil {
		return "", err
	}

	var result string
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(js, &result)); err != nil {
		return "", fmt.Errorf("执行脚本失败: %w", err)
	}
	return result, nil
}

// Store 该页面所属会话的键值存储（浏览器 sessionStorage）
func (b *Browser) Store() session.Store {
	return &sessionStore{browser: b}
}

// SaveCookies 从浏览器提取Cookie并回写配置文件
func (b *Browser) SaveCookies() error {
	var cookies []*network.Cookie
	err := chromedp.Run(b.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("获取Cookie失败: %w", err)
	}

	var parts []string
	for _, c := range cookies {
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}

	if err := b.cfg.UpdateCookie(strings.Join(parts, "; ")); err != nil {
		return fmt.Errorf("保存Cookie失败: %w", err)
	}

	slog.Debug("已保存Cookie", "count", len(cookies))
	return nil
}

// sessionStore 浏览器 sessionStorage 的键值存储实现
// 与标签页同生命周期：关闭标签页即清空，刷新页面保留
type sessionStore struct {
	browser *Browser
}

func (s *sessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	keyJSON, _ := json.Marshal(key)
	js := fmt.Sprintf(`
	(function() {
		var raw = sessionStorage.getItem(%s);
		return JSON.stringify({ ok: raw !== null, value: raw || '' });
	})()`, keyJSON)

	raw, err := s.browser.EvaluateString(ctx, js)
	if err != nil {
		return "", false, fmt.Errorf("读取会话存储失败: %w", err)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", false, fmt.Errorf("解析会话存储结果失败: %w", err)
	}
	return result.Value, result.OK, nil
}

func (s *sessionStore) Set(ctx context.Context, key, value string) error {
	keyJSON, _ := json.Marshal(key)
	valueJSON, _ := json.Marshal(value)
	js := fmt.Sprintf(`sessionStorage.setItem(%s, %s)`, keyJSON, valueJSON)
	if err := s.browser.Evaluate(ctx, js); err != nil {
		return fmt.Errorf("写入会话存储失败: %w", err)
	}
	return nil
}

func (s *sessionStore) Remove(ctx context.Context, key string) error {
	keyJSON, _ := json.Marshal(key)
	js := fmt.Sprintf(`sessionStorage.removeItem(%s)`, keyJSON)
	if err := s.browser.Evaluate(ctx, js); err != nil {
		return fmt.Errorf("删除会话存储失败: %w", err)
	}
	return nil
}
