package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore 写入必败的存储，用于验证前进失败时不交出URL
type failingStore struct {
	*MemoryStore
	failSet bool
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestQueueStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	qs := NewQueueStore(NewMemoryStore())

	urls := []string{"https://lms/mod/resource/view.php?id=1", "https://lms/mod/resource/view.php?id=2"}
	require.NoError(t, qs.Save(ctx, KindContent, urls))

	q, ok := qs.Load(ctx, KindContent)
	require.True(t, ok)
	assert.Equal(t, urls, q.Items)
	assert.Equal(t, 0, q.Cursor)
	assert.False(t, q.Exhausted())
	assert.Equal(t, 2, q.Remaining())
}

func TestQueueStore_LoadAbsent(t *testing.T) {
	ctx := context.Background()
	qs := NewQueueStore(NewMemoryStore())

	_, ok := qs.Load(ctx, KindQuiz)
	assert.False(t, ok)
}

func TestQueueStore_LoadMalformed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	qs := NewQueueStore(store)

	tests := []struct {
		name string
		raw  string
	}{
		{"坏JSON", `{not json`},
		{"游标为负", `{"items":["a"],"cursor":-1}`},
		{"游标越界", `{"items":["a"],"cursor":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, contentQueueKey, tt.raw))
			_, ok := qs.Load(ctx, KindContent)
			assert.False(t, ok)
		})
	}
}

func TestQueueStore_AdvancePersistsBeforeReturning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	qs := NewQueueStore(store)

	require.NoError(t, qs.Save(ctx, KindContent, []string{"u1", "u2"}))

	url, ok, err := qs.Advance(ctx, KindContent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", url)

	// 游标已持久化：重新加载（模拟页面重载）不会重复同一条目
	q, ok := qs.Load(ctx, KindContent)
	require.True(t, ok)
	assert.Equal(t, 1, q.Cursor)

	url, ok, err = qs.Advance(ctx, KindContent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u2", url)

	// 耗尽后不再交出URL
	_, ok, err = qs.Advance(ctx, KindContent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueStore_AdvanceWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	qs := NewQueueStore(store)

	require.NoError(t, qs.Save(ctx, KindQuiz, []string{"q1"}))

	store.failSet = true
	url, ok, err := qs.Advance(ctx, KindQuiz)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, url)

	// 游标未越过该条目，存储恢复后仍能取到
	store.failSet = false
	url, ok, err = qs.Advance(ctx, KindQuiz)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "q1", url)
}

func TestQueueStore_CursorMonotonic(t *testing.T) {
	ctx := context.Background()
	qs := NewQueueStore(NewMemoryStore())

	require.NoError(t, qs.Save(ctx, KindContent, []string{"a", "b", "c"}))

	last := -1
	for {
		_, ok, err := qs.Advance(ctx, KindContent)
		require.NoError(t, err)
		if !ok {
			break
		}
		q, _ := qs.Load(ctx, KindContent)
		assert.Greater(t, q.Cursor, last)
		last = q.Cursor
	}
	assert.Equal(t, 3, last)
}

func TestQueueStore_Clear(t *testing.T) {
	ctx := context.Background()
	qs := NewQueueStore(NewMemoryStore())

	require.NoError(t, qs.Save(ctx, KindContent, []string{"a"}))
	require.NoError(t, qs.Clear(ctx, KindContent))

	_, ok := qs.Load(ctx, KindContent)
	assert.False(t, ok)
}

func TestQueueStore_State(t *testing.T) {
	ctx := context.Background()
	qs := NewQueueStore(NewMemoryStore())

	// 缺省为零值
	st := qs.LoadState(ctx)
	assert.False(t, st.ScannedContent)
	assert.False(t, st.ScannedQuiz)

	st.ScannedContent = true
	st.CourseURL = "https://lms/course/view.php?id=7"
	require.NoError(t, qs.SaveState(ctx, st))

	got := qs.LoadState(ctx)
	assert.True(t, got.ScannedContent)
	assert.Equal(t, "https://lms/course/view.php?id=7", got.CourseURL)

	require.NoError(t, qs.ClearState(ctx))
	assert.False(t, qs.LoadState(ctx).ScannedContent)
}
