package scheduler

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/Vada521/englishai/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender отправляет сообщения в Telegram
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// InactiveUserSource возвращает пользователей для напоминания
type InactiveUserSource interface {
	InactiveUsers(ctx context.Context, now time.Time, after, window time.Duration) ([]*models.User, error)
}

// ReminderJob напоминает о занятиях пользователям, которые прошли тест и давно не заходили.
// Каждый запуск берет окно [now-after-interval, now-after), поэтому при запуске раз в interval
// пользователь получает одно напоминание за период неактивности.
type ReminderJob struct {
	users    InactiveUserSource
	bot      Sender
	after    time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewReminderJob создает задачу напоминаний
func NewReminderJob(users InactiveUserSource, bot Sender, after, interval time.Duration, logger *zap.Logger) *ReminderJob {
	return &ReminderJob{
		users:    users,
		bot:      bot,
		after:    after,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Name имя задачи для логов
func (j *ReminderJob) Name() string {
	return "study_reminder"
}

// Run отправляет напоминания
func (j *ReminderJob) Run(ctx context.Context) error {
	users, err := j.users.InactiveUsers(ctx, j.now(), j.after, j.interval)
	if err != nil {
		return fmt.Errorf("ошибка получения неактивных пользователей: %w", err)
	}

	sent := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.remind(u); err != nil {
			j.logger.Error("ошибка отправки напоминания",
				zap.Error(err),
				zap.Int64("user_id", u.TelegramID))
			continue
		}
		sent++
	}

	j.logger.Info("напоминания отправлены", zap.Int("found", len(users)), zap.Int("sent", sent))
	return nil
}

func (j *ReminderJob) remind(u *models.User) error {
	name := u.Name
	if name == "" {
		name = u.FirstName
	}

	text := fmt.Sprintf("🎯 <b>%s, давно не виделись!</b>\n\n"+
		"Ваш уровень: %s. Небольшое задание, чтобы вернуться в ритм:\n\n<i>%s</i>\n\n"+
		"Продолжим обучение по вашему плану?",
		html.EscapeString(name), html.EscapeString(u.Level.String()), html.EscapeString(reminderTask(u.Level, j.now())))

	msg := tgbotapi.NewMessage(u.TelegramID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("▶️ Продолжить обучение", "start_learning"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Главное меню", "main_menu"),
		),
	)

	if _, err := j.bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return nil
}

var reminderTasks = map[models.Level][]string{
	models.LevelA1: {
		"Tell me about your favorite food in 2-3 sentences.",
		"Describe your morning routine. What do you do when you wake up?",
	},
	models.LevelA2: {
		"What did you do last weekend? Write 3 sentences in Past Simple.",
		"Describe your best friend. What does he or she like?",
	},
	models.LevelB1: {
		"If you could visit any country, where would you go and why?",
		"Describe a memorable moment from your childhood.",
	},
	models.LevelB2: {
		"What skill would you like to learn and how would it change your life?",
		"Do you think remote work is better than office work? Give two arguments.",
	},
	models.LevelC1: {
		"How does technology affect human relationships? Share your perspective.",
		"Describe a book or film that changed your way of thinking.",
	},
}

// reminderTask выбирает задание по уровню, неизвестный уровень считается A1
func reminderTask(level models.Level, now time.Time) string {
	tasks, ok := reminderTasks[level]
	if !ok {
		tasks = reminderTasks[models.LevelA1]
	}
	return tasks[now.YearDay()%len(tasks)]
}
