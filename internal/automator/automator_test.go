package automator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigolms/internal/config"
	"amigolms/internal/session"
)

// eventRecorder 收集自动化事件
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) callback(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) countOf(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.New(filepath.Join(t.TempDir(), "settings.json"))
}

const (
	courseURL   = "https://lms/course/view.php?id=7"
	content1URL = "https://lms/mod/resource/view.php?id=1"
	content2URL = "https://lms/mod/page/view.php?id=2"

	quiz1ViewURL    = "https://lms/mod/quiz/view.php?id=11"
	quiz1AttemptURL = "https://lms/mod/quiz/attempt.php?attempt=101"
	quiz1SummaryURL = "https://lms/mod/quiz/summary.php?attempt=101"
	quiz1ReviewURL  = "https://lms/mod/quiz/review.php?attempt=101"

	quiz2ViewURL    = "https://lms/mod/quiz/view.php?id=13"
	quiz2AttemptURL = "https://lms/mod/quiz/attempt.php?attempt=102"
	quiz2SummaryURL = "https://lms/mod/quiz/summary.php?attempt=102"
	quiz2ReviewURL  = "https://lms/mod/quiz/review.php?attempt=102"
)

const coursePageHTML = `
<html><body>
<ul class="topics">
  <li class="activity" id="module-1"><a href="` + content1URL + `">Week 1 Reading</a></li>
  <li class="activity" id="module-2"><a href="` + content2URL + `">Week 1 Notes</a></li>
  <li class="activity" id="module-3">
    <a href="https://lms/mod/url/view.php?id=3">Week 1 Video</a>
    <span class="badge-success">Completed</span>
  </li>
  <li class="activity" id="module-4"><a href="` + quiz1ViewURL + `">Quiz 1</a></li>
  <li class="activity" id="module-5"><a href="` + quiz2ViewURL + `">Quiz 2</a></li>
</ul>
</body></html>`

const attemptPageHTML = `
<html><body>
<div class="que multichoice">
  <input type="radio" name="q1:answer" value="-1">
  <input type="radio" name="q1:answer" value="0">
  <input type="radio" name="q1:answer" value="1">
</div>
<input type="submit" id="mod_quiz-next-nav" value="Finish attempt ...">
</body></html>`

const summaryPageHTML = `
<html><body>
<button type="submit" class="btn btn-primary">Submit all and finish</button>
</body></html>`

// newCoursePage 完整课程场景：2个未完成内容 + 1个已完成内容 + 2个测验
func newCoursePage() *fakePage {
	page := newFakePage(courseURL, map[string]string{
		courseURL:   coursePageHTML,
		content1URL: `<html><body><p>reading</p></body></html>`,
		content2URL: `<html><body><p>notes</p></body></html>`,

		quiz1ViewURL:    `<html><body><button class="btn btn-primary">Attempt quiz</button></body></html>`,
		quiz1AttemptURL: attemptPageHTML,
		quiz1SummaryURL: summaryPageHTML,
		quiz1ReviewURL:  `<html><body><p>review</p></body></html>`,

		quiz2ViewURL:    `<html><body><button class="btn btn-primary">Continue</button></body></html>`,
		quiz2AttemptURL: attemptPageHTML,
		quiz2SummaryURL: summaryPageHTML,
		quiz2ReviewURL:  `<html><body><p>review</p></body></html>`,
	})

	page.onClickGoto(quiz1ViewURL, 0, quiz1AttemptURL)
	page.onClickGoto(quiz1AttemptURL, 0, quiz1SummaryURL)
	page.onClickGoto(quiz1SummaryURL, 0, quiz1ReviewURL)

	page.onClickGoto(quiz2ViewURL, 0, quiz2AttemptURL)
	page.onClickGoto(quiz2AttemptURL, 0, quiz2SummaryURL)
	page.onClickGoto(quiz2SummaryURL, 0, quiz2ReviewURL)

	return page
}

func TestAutomator_FullTraversal(t *testing.T) {
	page := newCoursePage()
	rec := &eventRecorder{}
	a := New(testConfig(t), page, rec.callback, WithTiming(testTiming()))

	require.NoError(t, a.Enable())

	// 内容按序遍历，回跳课程页，两个测验完整跑完，之后自动停用
	require.Eventually(t, func() bool {
		return !a.Enabled() && rec.countOf(EventComplete) == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		content1URL,
		content2URL,
		courseURL,
		quiz1ViewURL,
		quiz2ViewURL,
	}, page.navHistory())

	// 每个测验一次随机作答
	assert.Len(t, page.radioHistory(), 2)

	// 结束事件恰好一次
	assert.Equal(t, 1, rec.countOf(EventComplete))
}

func TestAutomator_EnableIsIdempotent(t *testing.T) {
	page := newFakePage("https://lms/my/", map[string]string{})
	a := New(testConfig(t), page, nil, WithTiming(testTiming()))

	require.NoError(t, a.Enable())
	require.NoError(t, a.Enable())
	assert.True(t, a.Enabled())

	require.NoError(t, a.Disable())
	require.NoError(t, a.Disable())
	assert.False(t, a.Enabled())
}

func TestAutomator_DisableStopsScheduledWork(t *testing.T) {
	page := newCoursePage()
	rec := &eventRecorder{}
	a := New(testConfig(t), page, rec.callback, WithTiming(testTiming()))

	require.NoError(t, a.Enable())

	// 等到第一次导航后立刻停用
	require.Eventually(t, func() bool {
		return len(page.navHistory()) >= 1
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, a.Disable())

	count := len(page.navHistory())
	time.Sleep(50 * time.Millisecond)

	// 停用后不再有任何页面动作，残留定时器逐步清空
	assert.Equal(t, count, len(page.navHistory()))
	require.Eventually(t, func() bool {
		return a.timers.Pending() == 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, rec.countOf(EventComplete))
}

func TestAutomator_EnableClearsPreviousRun(t *testing.T) {
	page := newFakePage("https://lms/my/", map[string]string{})
	ctx := context.Background()
	queues := session.NewQueueStore(page.Store())

	require.NoError(t, queues.Save(ctx, session.KindContent, []string{"stale"}))
	require.NoError(t, queues.SaveState(ctx, session.State{ScannedContent: true}))

	a := New(testConfig(t), page, nil, WithTiming(testTiming()))
	require.NoError(t, a.Enable())

	_, ok := queues.Load(ctx, session.KindContent)
	assert.False(t, ok)
	assert.False(t, queues.LoadState(ctx).ScannedContent)

	a.Disable()
}

func TestAutomator_DisableKeepsQuizQueueWhenConfigured(t *testing.T) {
	// 存储策略配置为停用时保留测验队列
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"settings": {"is_active": false, "navigate_quizzes": true},
		"store": {"clear_quiz_queue_on_disable": false}
	}`), 0644))

	cfg := config.New(path)
	require.NoError(t, cfg.Load())

	page := newFakePage("https://lms/my/", map[string]string{})
	a := New(cfg, page, nil, WithTiming(testTiming()))
	require.NoError(t, a.Enable())

	ctx := context.Background()
	queues := session.NewQueueStore(page.Store())
	require.NoError(t, queues.Save(ctx, session.KindQuiz, []string{"q1", "q2"}))
	require.NoError(t, queues.Save(ctx, session.KindContent, []string{"c1"}))

	require.NoError(t, a.Disable())

	// 内容队列总是清除，测验队列按策略保留
	_, ok := queues.Load(ctx, session.KindContent)
	assert.False(t, ok)
	q, ok := queues.Load(ctx, session.KindQuiz)
	require.True(t, ok)
	assert.Equal(t, []string{"q1", "q2"}, q.Items)
}

func TestAutomator_BootResumesFromPersistedActive(t *testing.T) {
	// 进程重启后持久化的总开关仍为启用：Boot 恢复运行
	cfg := testConfig(t)
	require.NoError(t, cfg.SetActive(true))

	page := newCoursePage()
	rec := &eventRecorder{}
	a := New(cfg, page, rec.callback, WithTiming(testTiming()))

	assert.False(t, a.Enabled())
	a.Boot()

	require.Eventually(t, func() bool {
		return len(page.navHistory()) >= 1
	}, 5*time.Second, time.Millisecond)
	// 可能在断言前就已整轮跑完并自行停用
	assert.True(t, a.Enabled() || rec.countOf(EventComplete) == 1)

	a.Disable()
}

func TestAutomator_BootStaysIdleWhenInactive(t *testing.T) {
	page := newCoursePage()
	a := New(testConfig(t), page, nil, WithTiming(testTiming()))

	a.Boot()
	time.Sleep(20 * time.Millisecond)

	assert.False(t, a.Enabled())
	assert.Empty(t, page.navHistory())
}

func TestAutomator_AssignmentSkippedAtEndOfModule(t *testing.T) {
	assignURL := "https://lms/mod/assign/view.php?id=12&section=final"
	page := newFakePage(assignURL, map[string]string{
		assignURL: `<html><body>
		<nav class="breadcrumb"><a>Final Assessment</a></nav>
		<textarea name="answer"></textarea>
		<button>Submit assignment</button>
		</body></html>`,
	})

	cfg := testConfig(t)
	require.NoError(t, cfg.SetActive(true))

	rec := &eventRecorder{}
	a := New(cfg, page, rec.callback, WithTiming(testTiming()))
	a.Boot()

	require.Eventually(t, func() bool {
		return rec.countOf(EventSkipped) == 1
	}, 5*time.Second, time.Millisecond)

	// 跳过即不填写不提交
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, page.clickHistory())

	a.Disable()
}

func TestAutomator_AssignmentFilledAndSubmitted(t *testing.T) {
	assignURL := "https://lms/mod/assign/view.php?id=12"
	page := newFakePage(assignURL, map[string]string{
		assignURL: `<html><body>
		<textarea name="answer"></textarea>
		<button>Submit assignment</button>
		</body></html>`,
	})

	cfg := testConfig(t)
	require.NoError(t, cfg.SetActive(true))

	rec := &eventRecorder{}
	a := New(cfg, page, rec.callback, WithTiming(testTiming()))
	a.Boot()

	// 注入填写脚本后点击提交；作业不入队列，此后不前进
	require.Eventually(t, func() bool {
		return len(page.clickHistory()) == 1
	}, 5*time.Second, time.Millisecond)

	page.mu.Lock()
	evals := len(page.evals)
	page.mu.Unlock()
	assert.Equal(t, 1, evals)
	assert.Empty(t, page.navHistory())

	a.Disable()
}
