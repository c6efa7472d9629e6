package automator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"amigolms/internal/answers"
	"amigolms/internal/classify"
	"amigolms/internal/config"
	"amigolms/internal/session"
)

// 事件类型
const (
	EventProgress = "progress" // 遍历推进
	EventComplete = "complete" // 全部遍历结束
	EventSkipped  = "skipped"  // 条目被跳过
	EventError    = "error"    // 非致命错误
)

// Event 自动化过程事件，推送给前端展示
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Callback 事件回调
type Callback func(Event)

// Option 构造选项
type Option func(*Automator)

// WithTiming 覆盖默认时序（测试用）
func WithTiming(t Timing) Option {
	return func(a *Automator) {
		a.timing = t
	}
}

// Automator 自动化生命周期与导航控制器
//
// 状态模型是"每次页面加载重新引导"：Boot 在页面可用后调用一次，
// 读取持久化的队列与设置，推导当前应做的事并调度执行。
// 所有延时动作都登记在 timers 里，Disable 一次性作废，停用后
// 不会再有任何残留动作触达页面。
type Automator struct {
	cfg    *config.Config
	page   Page
	queues *session.QueueStore
	timers *timerSet
	timing Timing

	callback Callback

	mu      sync.Mutex
	enabled bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New 创建控制器
func New(cfg *config.Config, page Page, callback Callback, opts ...Option) *Automator {
	a := &Automator{
		cfg:      cfg,
		page:     page,
		queues:   session.NewQueueStore(page.Store()),
		timers:   newTimerSet(),
		timing:   DefaultTiming(),
		callback: callback,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Automator) emit(eventType, message string, current, total int) {
	if a.callback != nil {
		a.callback(Event{Type: eventType, Message: message, Current: current, Total: total})
	}
}

// Enabled 当前是否处于启用状态
func (a *Automator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Enable 启用自动化
// 清除上一轮的扫描标记和队列，强制从当前页面重新扫描；已启用时无操作
func (a *Automator) Enable() error {
	a.mu.Lock()
	if a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = true
	a.ctx, a.cancel = context.WithCancel(context.Background())
	ctx := a.ctx
	a.mu.Unlock()

	if err := a.cfg.SetActive(true); err != nil {
		return fmt.Errorf("写入启用状态失败: %w", err)
	}

	a.queues.ClearState(ctx)
	a.queues.Clear(ctx, session.KindContent)
	a.queues.Clear(ctx, session.KindQuiz)

	slog.Info("自动化已启用")
	a.Boot()
	return nil
}

// Disable 停用自动化
// 作废全部未触发的定时动作，之后不再触达页面；已停用时无操作。
// 测验队列是否一并清除由持久化策略决定，保留时重新启用可续跑
func (a *Automator) Disable() error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.enabled = false
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.timers.CancelAll()

	if err := a.cfg.SetActive(false); err != nil {
		return fmt.Errorf("写入停用状态失败: %w", err)
	}

	ctx := context.Background()
	a.queues.Clear(ctx, session.KindContent)
	if a.cfg.StoreOptions().ClearQuizQueueOnDisable {
		a.queues.Clear(ctx, session.KindQuiz)
	}

	slog.Info("自动化已停用")
	return nil
}

// Boot 页面加载完成后的入口
// 重新读取设置（外部可能改过配置文件），等待页面安定后派发。
// 进程内未启用但持久化状态为启用时恢复运行，对应刷新页面续跑的场景
func (a *Automator) Boot() {
	if err := a.cfg.Load(); err != nil {
		slog.Debug("重读配置失败", "err", err)
	}

	a.mu.Lock()
	if !a.enabled {
		if !a.cfg.Settings().IsActive {
			a.mu.Unlock()
			return
		}
		a.enabled = true
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	ctx := a.ctx
	a.mu.Unlock()

	a.timers.Schedule(a.timing.SettleDelay, func() {
		a.dispatch(ctx)
	})
}

// dispatch 按页面类型派发对应处理
func (a *Automator) dispatch(ctx context.Context) {
	url, err := a.page.URL(ctx)
	if err != nil {
		slog.Debug("获取页面地址失败", "err", err)
		return
	}

	s := a.cfg.Settings()
	class := ClassifyPage(url)
	slog.Debug("派发页面", "url", url, "class", class)

	switch class {
	case PageCourse:
		a.stepCourse(ctx, url, s)
	case PageQuiz, PageQuizSummary, PageQuizReview:
		if !s.AutoSubmit {
			return
		}
		a.runQuiz(ctx, s)
	case PageAssignment:
		a.handleAssignment(ctx, url, s)
	case PageLesson:
		a.handleLesson(ctx)
	case PageResource:
		if s.NavigateContent {
			a.advanceContent(ctx, url)
		}
	}
}

// stepCourse 课程主页处理
// 每个会话只扫描播种一次，之后的课程页访问只负责继续推进
func (a *Automator) stepCourse(ctx context.Context, url string, s config.Settings) {
	if !s.NavigateContent {
		a.maybeStartQuizzes(ctx, url)
		return
	}

	st := a.queues.LoadState(ctx)
	if !st.ScannedContent {
		doc, err := snapshot(ctx, a.page)
		if err != nil {
			slog.Debug("获取页面快照失败", "err", err)
			return
		}

		items := classify.CollectContent(doc)
		if err := a.queues.Save(ctx, session.KindContent, classify.URLs(items)); err != nil {
			slog.Debug("保存内容队列失败", "err", err)
			return
		}
		st.ScannedContent = true
		st.CourseURL = url
		if err := a.queues.SaveState(ctx, st); err != nil {
			slog.Debug("保存会话状态失败", "err", err)
		}
		slog.Info("内容队列已播种", "count", len(items))
		a.emit(EventProgress, fmt.Sprintf("发现 %d 个未完成内容", len(items)), 0, len(items))
	}

	a.advanceContent(ctx, url)
}

// advanceContent 弹出下一个内容页；耗尽后转入测验遍历
func (a *Automator) advanceContent(ctx context.Context, url string) {
	q, ok := a.queues.Load(ctx, session.KindContent)
	if !ok || q.Exhausted() {
		a.maybeStartQuizzes(ctx, url)
		return
	}

	next, ok, err := a.queues.Advance(ctx, session.KindContent)
	if err != nil {
		slog.Debug("推进内容队列失败", "err", err)
		a.emit(EventError, "推进内容队列失败", 0, 0)
		return
	}
	if !ok {
		a.maybeStartQuizzes(ctx, url)
		return
	}

	a.emit(EventProgress, "访问内容页", q.Cursor+1, len(q.Items))
	a.gotoURL(ctx, next)
}

// maybeStartQuizzes 内容遍历结束后的测验遍历入口
// 测验队列已存在时直接续跑；尚未扫描且不在课程页时先回跳课程页
func (a *Automator) maybeStartQuizzes(ctx context.Context, url string) {
	s := a.cfg.Settings()
	if !s.NavigateQuizzes {
		a.finish()
		return
	}

	if q, ok := a.queues.Load(ctx, session.KindQuiz); ok {
		if q.Exhausted() {
			a.finish()
			return
		}
		a.advanceQuiz(ctx)
		return
	}

	st := a.queues.LoadState(ctx)
	if st.ScannedQuiz {
		a.finish()
		return
	}

	if ClassifyPage(url) != PageCourse {
		if st.CourseURL != "" {
			a.gotoURL(ctx, st.CourseURL)
			return
		}
		a.finish()
		return
	}

	doc, err := snapshot(ctx, a.page)
	if err != nil {
		slog.Debug("获取页面快照失败", "err", err)
		return
	}

	items := classify.CollectQuizzes(doc)
	st.ScannedQuiz = true
	if err := a.queues.SaveState(ctx, st); err != nil {
		slog.Debug("保存会话状态失败", "err", err)
	}
	if len(items) == 0 {
		a.finish()
		return
	}

	if err := a.queues.Save(ctx, session.KindQuiz, classify.URLs(items)); err != nil {
		slog.Debug("保存测验队列失败", "err", err)
		return
	}
	slog.Info("测验队列已播种", "count", len(items))
	a.emit(EventProgress, fmt.Sprintf("发现 %d 个未完成测验", len(items)), 0, len(items))
	a.advanceQuiz(ctx)
}

// advanceQuiz 弹出下一个测验；队列从未建立时不做任何事
func (a *Automator) advanceQuiz(ctx context.Context) {
	q, ok := a.queues.Load(ctx, session.KindQuiz)
	if !ok {
		return
	}
	if q.Exhausted() {
		a.finish()
		return
	}

	next, ok, err := a.queues.Advance(ctx, session.KindQuiz)
	if err != nil {
		slog.Debug("推进测验队列失败", "err", err)
		a.emit(EventError, "推进测验队列失败", 0, 0)
		return
	}
	if !ok {
		a.finish()
		return
	}

	a.emit(EventProgress, "访问测验", q.Cursor+1, len(q.Items))
	a.gotoURL(ctx, next)
}

// finish 全部遍历结束
// 只在启用状态下生效，结束事件恰好发出一次
func (a *Automator) finish() {
	a.mu.Lock()
	enabled := a.enabled
	a.mu.Unlock()
	if !enabled {
		return
	}

	slog.Info("遍历结束")
	a.emit(EventComplete, "全部条目处理完毕", 0, 0)
	a.Disable()
}

// gotoURL 延时导航到目标页并在加载后重新引导
// 导航前作废旧页面的全部定时动作，对应整页跳转时的上下文销毁
func (a *Automator) gotoURL(ctx context.Context, url string) {
	a.timers.Schedule(a.timing.AdvanceDelay, func() {
		a.timers.CancelAll()
		if err := a.page.Navigate(ctx, url); err != nil {
			slog.Debug("导航失败", "url", url, "err", err)
			a.emit(EventError, "导航失败", 0, 0)
			return
		}
		a.timers.Schedule(a.timing.PageLoadWait, a.Boot)
	})
}

// runQuiz 在当前测验页上运行测验状态机
func (a *Automator) runQuiz(ctx context.Context, s config.Settings) {
	flow := &quizFlow{
		page:       a.page,
		timers:     a.timers,
		timing:     a.timing,
		fillRandom: s.RandomAnswers,
		onAdvance: func(reason AdvanceReason) {
			a.emit(EventProgress, fmt.Sprintf("测验结束(%s)", reason), 0, 0)
			a.advanceQuiz(ctx)
		},
		onPageLoad: func() {
			a.timers.Schedule(a.timing.PageLoadWait, a.Boot)
		},
	}
	flow.Run(ctx)
}

// handleAssignment 作业页处理
// 末尾大作业按设置跳过；其余作业填入占位文本后提交。
// 作业不入队列，提交后不主动前进，避免误跳过需要人工处理的内容
func (a *Automator) handleAssignment(ctx context.Context, url string, s config.Settings) {
	if !s.AutoSubmit {
		return
	}

	doc, err := snapshot(ctx, a.page)
	if err != nil {
		slog.Debug("获取页面快照失败", "err", err)
		return
	}

	if s.SkipEndModuleAssignments && IsEndOfModule(doc, url) {
		slog.Info("跳过末尾大作业", "url", url)
		a.emit(EventSkipped, "跳过末尾大作业", 0, 0)
		return
	}

	if err := a.page.Evaluate(ctx, answers.FillTextAreasJS()); err != nil {
		slog.Debug("填写作业文本失败", "err", err)
	}

	a.timers.Schedule(a.timing.ActivityDelay, func() {
		doc, err := snapshot(ctx, a.page)
		if err != nil {
			return
		}
		if submit := findLabeled(ScanControls(doc), "submit"); submit != nil {
			slog.Debug("提交作业")
			a.page.ClickControl(ctx, submit.Index)
			a.emit(EventProgress, "作业已提交", 0, 0)
		}
	})
}

// handleLesson 课件页处理：逐页点下一步直到没有为止
func (a *Automator) handleLesson(ctx context.Context) {
	doc, err := snapshot(ctx, a.page)
	if err != nil {
		slog.Debug("获取页面快照失败", "err", err)
		return
	}

	if next := findLabeled(ScanControls(doc), "next"); next != nil {
		slog.Debug("课件翻页")
		a.page.ClickControl(ctx, next.Index)
		a.timers.Schedule(a.timing.PageLoadWait, a.Boot)
	}
}
