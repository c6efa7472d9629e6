package automator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"amigolms/internal/session"
)

// fakePage 测试用页面
// pages 按URL给出静态HTML；clickNav 把某页上的某个控件点击
// 映射为整页跳转（点击后 current 立即切换，模拟浏览器行为）
type fakePage struct {
	mu       sync.Mutex
	store    *session.MemoryStore
	pages    map[string]string
	clickNav map[string]map[int]string
	current  string

	navs   []string
	clicks []string
	radios []string
	evals  []string
}

func newFakePage(start string, pages map[string]string) *fakePage {
	return &fakePage{
		store:    session.NewMemoryStore(),
		pages:    pages,
		clickNav: make(map[string]map[int]string),
		current:  start,
	}
}

func (p *fakePage) onClickGoto(url string, index int, target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickNav[url] == nil {
		p.clickNav[url] = make(map[int]string)
	}
	p.clickNav[url][index] = target
}

func (p *fakePage) URL(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakePage) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[p.current], nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
	p.navs = append(p.navs, url)
	return nil
}

func (p *fakePage) ClickControl(ctx context.Context, index int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, fmt.Sprintf("%s#%d", p.current, index))
	if target, ok := p.clickNav[p.current][index]; ok {
		p.current = target
	}
	return true, nil
}

func (p *fakePage) CheckRadio(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.radios = append(p.radios, name+"="+value)
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, js string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append(p.evals, js)
	return nil
}

func (p *fakePage) Store() session.Store {
	return p.store
}

func (p *fakePage) navHistory() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navs...)
}

func (p *fakePage) clickHistory() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *fakePage) radioHistory() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.radios...)
}

// testTiming 毫秒级延时，让链式调度在测试里尽快跑完
func testTiming() Timing {
	return Timing{
		SettleDelay:   time.Millisecond,
		ActivityDelay: time.Millisecond,
		PageLoadWait:  time.Millisecond,
		AdvanceDelay:  time.Millisecond,

		StepDelay:   time.Millisecond,
		FillBuffer:  time.Millisecond,
		FinishDelay: time.Millisecond,

		SubmitPollInterval:  time.Millisecond,
		SubmitPollAttempts:  3,
		ConfirmPollInterval: time.Millisecond,
		ConfirmPollAttempts: 3,
	}
}
