package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Vada521/englishai/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testQuestions() []models.TestQuestion {
	return []models.TestQuestion{
		{Question: "Q1", Options: []string{"am", "is", "are"}},
		{Question: "Q2", Options: []string{"went", "gone", "going"}},
	}
}

func TestTestSession_Answer(t *testing.T) {
	ts := NewTestSession(testQuestions())
	assert.Equal(t, 2, ts.Total())
	assert.False(t, ts.Done())

	q, ok := ts.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "Q1", q.Question)

	require.NoError(t, ts.Answer("a"))
	require.NoError(t, ts.Answer("C"))
	assert.True(t, ts.Done())

	assert.Equal(t, []models.TestAnswer{
		{Question: "Q1", Answer: "am"},
		{Question: "Q2", Answer: "going"},
	}, ts.Answers)

	assert.Error(t, ts.Answer("a"))
	_, ok = ts.CurrentQuestion()
	assert.False(t, ok)
}

func TestTestSession_InvalidLetter(t *testing.T) {
	ts := NewTestSession(testQuestions())

	assert.Error(t, ts.Answer("d"))
	assert.Error(t, ts.Answer("ab"))
	assert.Error(t, ts.Answer(""))
	assert.Error(t, ts.Answer("1"))
	assert.Equal(t, 0, ts.Current)
	assert.Empty(t, ts.Answers)
}

func TestNilTestSession(t *testing.T) {
	var ts *TestSession
	assert.False(t, ts.Done())
	assert.Zero(t, ts.Total())
	_, ok := ts.CurrentQuestion()
	assert.False(t, ok)
}

func TestSessionReset(t *testing.T) {
	s := New(1)
	s.Stage = StageTest
	s.ThreadID = "thread_1"
	s.Test = NewTestSession(testQuestions())
	s.Lesson = &LessonState{TopicIndex: 2}

	s.Reset()

	assert.Equal(t, StageMenu, s.Stage)
	assert.Equal(t, "thread_1", s.ThreadID)
	assert.Nil(t, s.Test)
	assert.Nil(t, s.Lesson)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	s, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, StageNew, s.Stage)
	assert.Equal(t, int64(42), s.ChatID)

	s.Stage = StageTest
	s.Test = NewTestSession(testQuestions())
	require.NoError(t, store.Save(ctx, s))

	// изменения после сохранения не попадают в хранилище
	s.Stage = StageMenu

	loaded, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, StageTest, loaded.Stage)
	require.NotNil(t, loaded.Test)
	assert.Len(t, loaded.Test.Questions, 2)

	require.NoError(t, store.Delete(ctx, 42))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	s := New(7)
	s.Stage = StageMenu
	require.NoError(t, store.Save(ctx, s))

	now = now.Add(2 * time.Minute)

	loaded, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StageNew, loaded.Stage)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_NoTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }

	s := New(7)
	s.Stage = StageMenu
	require.NoError(t, store.Save(ctx, s))

	now = now.Add(365 * 24 * time.Hour)

	loaded, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StageMenu, loaded.Stage)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "englishai:session:123", redisKey(123))
}

// TestRedisStore выполняется только при заданном TEST_REDIS_ADDR
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR не задан")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisOptions{Addr: addr, TTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	chatID := time.Now().UnixNano()
	defer store.Delete(ctx, chatID)

	s, err := store.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, StageNew, s.Stage)

	s.Stage = StageRegistrationPhone
	s.Name = "Анна"
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Get(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, StageRegistrationPhone, loaded.Stage)
	assert.Equal(t, "Анна", loaded.Name)
	assert.NoError(t, store.Ping(ctx))
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisOptions{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}
