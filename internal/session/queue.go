package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Kind 队列类型
type Kind string

const (
	KindContent Kind = "content" // 内容页队列
	KindQuiz    Kind = "quiz"    // 测验队列
)

// 会话存储键名
const (
	contentQueueKey = "__amigoContentQueue"
	quizQueueKey    = "__amigoQuizQueue"
	stateKey        = "__amigoSessionState"
)

// Queue 一次遍历的持久记录
// 不变量: 0 <= Cursor <= len(Items)；Cursor == len(Items) 表示已耗尽
type Queue struct {
	Items  []string `json:"items"`
	Cursor int      `json:"cursor"`
}

// Exhausted 队列是否已耗尽
func (q *Queue) Exhausted() bool {
	return q.Cursor >= len(q.Items)
}

// Remaining 剩余条目数
func (q *Queue) Remaining() int {
	if q.Exhausted() {
		return 0
	}
	return len(q.Items) - q.Cursor
}

// State 会话级一次性扫描标记
// 显式字段替代历史版本里的散落全局布尔，重置语义可审计
type State struct {
	ScannedContent bool   `json:"scanned_content"`
	ScannedQuiz    bool   `json:"scanned_quiz"`
	CourseURL      string `json:"course_url"` // 播种队列时所在的课程页，用于耗尽后回跳
}

// QueueStore 队列的持久化操作
// 唯一写者：导航控制器；读写失败一律降级为"队列不存在"
type QueueStore struct {
	store Store
}

// NewQueueStore 创建队列存储
func NewQueueStore(store Store) *QueueStore {
	return &QueueStore{store: store}
}

func keyFor(kind Kind) string {
	if kind == KindQuiz {
		return quizQueueKey
	}
	return contentQueueKey
}

// Save 覆盖写入指定类型的队列，游标归零
func (s *QueueStore) Save(ctx context.Context, kind Kind, urls []string) error {
	data, err := json.Marshal(Queue{Items: urls, Cursor: 0})
	if err != nil {
		return fmt.Errorf("序列化队列失败: %w", err)
	}
	return s.store.Set(ctx, keyFor(kind), string(data))
}

// Load 读取队列；不存在、读取失败或内容损坏都返回 ok=false
func (s *QueueStore) Load(ctx context.Context, kind Kind) (*Queue, bool) {
	raw, ok, err := s.store.Get(ctx, keyFor(kind))
	if err != nil {
		slog.Debug("读取队列失败，按不存在处理", "kind", kind, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var q Queue
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		slog.Debug("队列内容损坏，按不存在处理", "kind", kind, "err", err)
		return nil, false
	}
	if q.Cursor < 0 || q.Cursor > len(q.Items) {
		return nil, false
	}
	return &q, true
}

// Advance 弹出下一个URL
// 游标先递增并持久化，之后才把URL交给调用方发起导航；
// 页面在导航中途被销毁时游标已越过该条目，重载后不会重复访问
func (s *QueueStore) Advance(ctx context.Context, kind Kind) (string, bool, error) {
	q, ok := s.Load(ctx, kind)
	if !ok || q.Exhausted() {
		return "", false, nil
	}

	next := q.Items[q.Cursor]
	q.Cursor++

	data, err := json.Marshal(q)
	if err != nil {
		return "", false, fmt.Errorf("序列化队列失败: %w", err)
	}
	if err := s.store.Set(ctx, keyFor(kind), string(data)); err != nil {
		// 写入失败则不交出URL，避免无法持久化的前进
		return "", false, fmt.Errorf("持久化游标失败: %w", err)
	}

	return next, true, nil
}

// Clear 删除指定类型的队列
func (s *QueueStore) Clear(ctx context.Context, kind Kind) error {
	return s.store.Remove(ctx, keyFor(kind))
}

// LoadState 读取会话状态；不存在或损坏返回零值
func (s *QueueStore) LoadState(ctx context.Context) State {
	raw, ok, err := s.store.Get(ctx, stateKey)
	if err != nil || !ok {
		return State{}
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}
	}
	return st
}

// SaveState 持久化会话状态
func (s *QueueStore) SaveState(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化会话状态失败: %w", err)
	}
	return s.store.Set(ctx, stateKey, string(data))
}

// ClearState 清除会话状态（重新启用时强制重新扫描）
func (s *QueueStore) ClearState(ctx context.Context) error {
	return s.store.Remove(ctx, stateKey)
}
