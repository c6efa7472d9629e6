package automator

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageClass 按URL判定的页面类型
// 优先级 quiz > assignment > lesson，一个页面只属于一类
type PageClass int

const (
	PageOther PageClass = iota
	PageCourse
	PageResource // 普通内容页（/mod/ 下的非测评模块）
	PageQuiz
	PageQuizSummary
	PageQuizReview
	PageAssignment
	PageLesson
)

// URL路径片段
const (
	coursePathMark      = "/course/view.php"
	modPathMark         = "/mod/"
	quizPathMark        = "/mod/quiz/"
	quizSummaryPathMark = "/mod/quiz/summary.php"
	quizReviewPathMark  = "/mod/quiz/review.php"
	assignPathMark      = "/mod/assign/"
	lessonPathMark      = "/mod/lesson/"
)

// ClassifyPage 按URL子串匹配分类当前页面
func ClassifyPage(url string) PageClass {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, quizReviewPathMark):
		return PageQuizReview
	case strings.Contains(lower, quizSummaryPathMark):
		return PageQuizSummary
	case strings.Contains(lower, quizPathMark):
		return PageQuiz
	case strings.Contains(lower, assignPathMark):
		return PageAssignment
	case strings.Contains(lower, lessonPathMark):
		return PageLesson
	case strings.Contains(lower, coursePathMark):
		return PageCourse
	case strings.Contains(lower, modPathMark):
		return PageResource
	default:
		return PageOther
	}
}

// IsActivityPage 当前页是否由条目级状态机持有控制权
// （测验队列的启动在这些页面上必须推迟）
func IsActivityPage(c PageClass) bool {
	switch c {
	case PageQuiz, PageQuizSummary, PageQuizReview, PageAssignment, PageLesson:
		return true
	}
	return false
}

// 模块结尾标记词
var endModuleMarks = []string{"end", "final", "conclusion"}

// IsEndOfModule 模块结尾判定：面包屑文案或URL含结尾标记
func IsEndOfModule(doc *goquery.Document, url string) bool {
	if doc != nil {
		crumbs := doc.Find(".breadcrumb")
		if crumbs.Length() > 0 {
			text := strings.ToLower(crumbs.Text())
			for _, mark := range endModuleMarks {
				if strings.Contains(text, mark) {
					return true
				}
			}
		}
	}

	lower := strings.ToLower(url)
	for _, mark := range endModuleMarks {
		if strings.Contains(lower, mark) {
			return true
		}
	}
	return false
}

// Timing 引擎的全部延时参数
// 默认值来自实际页面调优；测试里缩短到毫秒级
type Timing struct {
	SettleDelay   time.Duration // 页面加载后到首次查询DOM的等待
	ActivityDelay time.Duration // 活动页处理前的额外等待
	PageLoadWait  time.Duration // 点击引发整页加载后的重引导等待
	AdvanceDelay  time.Duration // 队列前进到发起导航的间隔

	StepDelay   time.Duration // 单选组之间的错峰间隔
	FillBuffer  time.Duration // 全部作答后到下一步的缓冲
	FinishDelay time.Duration // 点击 Finish attempt 之后的等待

	SubmitPollInterval  time.Duration // 提交按钮轮询间隔
	SubmitPollAttempts  int           // 提交按钮轮询上限（约8秒）
	ConfirmPollInterval time.Duration // 模态确认轮询间隔
	ConfirmPollAttempts int           // 模态确认轮询上限（约4秒）
}

// DefaultTiming 默认延时参数
func DefaultTiming() Timing {
	return Timing{
		SettleDelay:   2 * time.Second,
		ActivityDelay: 3 * time.Second,
		PageLoadWait:  3 * time.Second,
		AdvanceDelay:  1 * time.Second,

		StepDelay:   800 * time.Millisecond,
		FillBuffer:  200 * time.Millisecond,
		FinishDelay: 1200 * time.Millisecond,

		SubmitPollInterval:  400 * time.Millisecond,
		SubmitPollAttempts:  20,
		ConfirmPollInterval: 200 * time.Millisecond,
		ConfirmPollAttempts: 20,
	}
}
