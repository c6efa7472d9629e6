package automator

import (
	"sync"
	"time"
)

// timerSet 可整体取消的定时器集合
// 生命周期控制器创建的每个延时回调都登记在这里；
// disable 或页面跳转时统一取消，杜绝过期回调在控制器关闭后继续动作
type timerSet struct {
	mu     sync.Mutex
	gen    int
	nextID int
	timers map[int]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[int]*time.Timer)}
}

// Schedule 注册一个延时回调
// 回调触发时若集合已被取消过（代数不符）则直接丢弃
func (t *timerSet) Schedule(d time.Duration, fn func()) {
	t.mu.Lock()
	gen := t.gen
	id := t.nextID
	t.nextID++

	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})
	t.timers[id] = timer
	t.mu.Unlock()
}

// CancelAll 取消所有未触发的定时器
func (t *timerSet) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Pending 未触发的定时器数量
func (t *timerSet) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
