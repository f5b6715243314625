package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Vada521/englishai/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestScheduler_RunOnceContinuesAfterError(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	ok := &countingJob{name: "ok"}
	s.AddJob(failing)
	s.AddJob(ok)

	s.RunOnce(context.Background())

	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, ok.runs)
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился")
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeUsers struct {
	users         []*models.User
	now           time.Time
	after, window time.Duration
	err           error
}

func (f *fakeUsers) InactiveUsers(_ context.Context, now time.Time, after, window time.Duration) ([]*models.User, error) {
	f.now, f.after, f.window = now, after, window
	return f.users, f.err
}

func TestReminderJob_Run(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	users := &fakeUsers{users: []*models.User{
		{TelegramID: 1, Name: "Анна", Level: models.LevelB1},
		{TelegramID: 2, FirstName: "Bob <admin>"},
	}}
	sender := &fakeSender{}

	job := NewReminderJob(users, sender, 48*time.Hour, time.Hour, zap.NewNop())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, now, users.now)
	assert.Equal(t, 48*time.Hour, users.after)
	assert.Equal(t, time.Hour, users.window)

	require.Len(t, sender.sent, 2)
	first := sender.sent[0]
	assert.Equal(t, int64(1), first.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, first.ParseMode)
	assert.Contains(t, first.Text, "Анна")
	assert.Contains(t, first.Text, "B1 (Средний)")

	markup, ok := first.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "start_learning", *markup.InlineKeyboard[0][0].CallbackData)

	assert.Contains(t, sender.sent[1].Text, "Bob &lt;admin&gt;")
}

func TestReminderJob_SendErrorsDoNotFail(t *testing.T) {
	users := &fakeUsers{users: []*models.User{{TelegramID: 1}}}
	job := NewReminderJob(users, &fakeSender{err: errors.New("blocked")}, time.Hour, time.Hour, zap.NewNop())

	assert.NoError(t, job.Run(context.Background()))
}

func TestReminderJob_SourceError(t *testing.T) {
	job := NewReminderJob(&fakeUsers{err: errors.New("db down")}, &fakeSender{}, time.Hour, time.Hour, zap.NewNop())

	assert.Error(t, job.Run(context.Background()))
}

func TestReminderTask(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, reminderTasks[models.LevelC1], reminderTask(models.LevelC1, now))
	assert.Contains(t, reminderTasks[models.LevelA1], reminderTask("", now))
}
