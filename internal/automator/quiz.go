package automator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// QuizPhase 测验流程阶段
// 每次页面加载后从URL/DOM重新推导，本身绝不持久化
type QuizPhase int

const (
	PhaseEntryPending         QuizPhase = iota // 等待点击入口按钮
	PhaseAnswering                             // 随机作答中
	PhaseFinishPending                         // 等待 Finish attempt
	PhaseSubmitConfirmPending                  // 等待 Submit all and finish
	PhaseAdvancing                             // 本条目结束，交还导航控制器
)

// DetectQuizPhase 从当前URL推导起始阶段
func DetectQuizPhase(url string) QuizPhase {
	switch ClassifyPage(url) {
	case PageQuizReview:
		return PhaseAdvancing
	case PageQuizSummary:
		return PhaseSubmitConfirmPending
	default:
		return PhaseEntryPending
	}
}

// AdvanceReason 条目结束并请求前进的原因
type AdvanceReason string

const (
	ReasonReview         AdvanceReason = "review"           // 已在回看页，本次尝试完成
	ReasonReattemptOnly  AdvanceReason = "re-attempt-only"  // 只剩重做入口，放弃该测验
	ReasonNoSubmitButton AdvanceReason = "no-submit-button" // 轮询耗尽未见提交按钮
)

// quizFlow 单次测验尝试的状态机
// 只读测验队列的存在，不直接改写：通过 onAdvance 回调请求导航控制器前进，
// 保持队列单写者不变量。各阶段动作幂等：同一静态页面上重复运行得到
// 相同的阶段判定，已点击后消失/禁用的控件不会再被点到
type quizFlow struct {
	page       Page
	timers     *timerSet
	timing     Timing
	fillRandom bool

	// onAdvance 请求外层遍历前进（唯一的队列变更通道）
	onAdvance func(reason AdvanceReason)
	// onPageLoad 点击引发整页加载后由外层重新引导
	onPageLoad func()
}

func (f *quizFlow) advance(reason AdvanceReason) {
	slog.Debug("测验流程结束", "reason", reason)
	if f.onAdvance != nil {
		f.onAdvance(reason)
	}
}

func (f *quizFlow) reboot() {
	if f.onPageLoad != nil {
		f.onPageLoad()
	}
}

// Run 按当前页面推导阶段并执行
func (f *quizFlow) Run(ctx context.Context) {
	url, err := f.page.URL(ctx)
	if err != nil {
		slog.Debug("获取页面地址失败", "err", err)
		return
	}

	switch DetectQuizPhase(url) {
	case PhaseAdvancing:
		// 提交后的回看页：本条目结束
		f.advance(ReasonReview)
	case PhaseSubmitConfirmPending:
		f.stepSubmit(ctx)
	default:
		f.stepEntry(ctx)
	}
}

// stepEntry 入口阶段
// 找到入口按钮就点击并停止，下一阶段由随之而来的页面加载触达；
// 一个入口都没有时认为已在答题页，直接进入作答
func (f *quizFlow) stepEntry(ctx context.Context) {
	doc, err := snapshot(ctx, f.page)
	if err != nil {
		slog.Debug("获取页面快照失败", "err", err)
		return
	}

	controls := ScanControls(doc)
	attempt, cont, reattempt := findEntryControls(controls)

	switch {
	case attempt != nil:
		slog.Debug("点击 Attempt quiz")
		f.page.ClickControl(ctx, attempt.Index)
		f.timers.Schedule(f.timing.PageLoadWait, f.reboot)
	case cont != nil:
		slog.Debug("点击 Continue")
		f.page.ClickControl(ctx, cont.Index)
		f.timers.Schedule(f.timing.PageLoadWait, f.reboot)
	case reattempt != nil:
		// 只剩重做入口：该测验不可作答，放弃而不是强做
		f.advance(ReasonReattemptOnly)
	default:
		f.stepFill(ctx, doc)
	}
}

// stepFill 作答阶段
// 按题目分组错峰随机选择，避免同时派发事件触发宿主页的竞态；
// 全部组调度完毕加缓冲后进入收尾
func (f *quizFlow) stepFill(ctx context.Context, doc *goquery.Document) {
	if !f.fillRandom {
		f.stepFinish(ctx)
		return
	}

	groups := ScanRadioGroups(doc)
	slog.Debug("开始随机作答", "groups", len(groups))

	for i, group := range groups {
		group := group
		f.timers.Schedule(time.Duration(i)*f.timing.StepDelay, func() {
			pick := group.Values[rand.Intn(len(group.Values))]
			if err := f.page.CheckRadio(ctx, group.Name, pick); err != nil {
				slog.Debug("选中单选失败", "name", group.Name, "err", err)
			}
		})
	}

	count := len(groups)
	if count == 0 {
		count = 1
	}
	wait := time.Duration(count)*f.timing.StepDelay + f.timing.FillBuffer
	f.timers.Schedule(wait, func() { f.stepFinish(ctx) })
}

// stepFinish 收尾阶段
// 找不到 Finish attempt 时直接尝试提交（部分流程没有这一步）
func (f *quizFlow) stepFinish(ctx context.Context) {
	doc, err := snapshot(ctx, f.page)
	if err != nil {
		slog.Debug("获取页面快照失败", "err", err)
		return
	}

	if finish := findFinishControl(ScanControls(doc)); finish != nil {
		slog.Debug("点击 Finish attempt")
		f.page.ClickControl(ctx, finish.Index)
		f.timers.Schedule(f.timing.FinishDelay, func() { f.stepSubmit(ctx) })
		return
	}

	f.stepSubmit(ctx)
}

// stepSubmit 提交确认阶段
// 有界轮询 "Submit all and finish"；点中后短暂轮询模态里的二次确认。
// 轮询耗尽仍未出现按钮时按放弃处理，队列照样越过该条目
func (f *quizFlow) stepSubmit(ctx context.Context) {
	found := pollUntil(ctx, f.timing.SubmitPollInterval, f.timing.SubmitPollAttempts, func() bool {
		doc, err := snapshot(ctx, f.page)
		if err != nil {
			return false
		}
		target := findSubmitControl(ScanControls(doc))
		if target == nil {
			return false
		}

		slog.Debug("点击 Submit all and finish")
		f.page.ClickControl(ctx, target.Index)

		pollUntil(ctx, f.timing.ConfirmPollInterval, f.timing.ConfirmPollAttempts, func() bool {
			doc2, err := snapshot(ctx, f.page)
			if err != nil {
				return false
			}
			confirm := findModalConfirm(ScanControls(doc2))
			if confirm == nil {
				return false
			}
			slog.Debug("模态内确认提交")
			f.page.ClickControl(ctx, confirm.Index)
			return true
		})
		return true
	})

	if ctx.Err() != nil {
		return
	}
	if !found {
		f.advance(ReasonNoSubmitButton)
		return
	}

	// 提交后的回看页加载由外层重新引导
	f.timers.Schedule(f.timing.PageLoadWait, f.reboot)
}
