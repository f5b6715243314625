package bot

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Vada521/englishai/internal/metrics"
	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/internal/user"
	"github.com/Vada521/englishai/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// Лимиты безопасности
	MaxTextLength     = 4000 // Максимальная длина текста сообщения
	MaxUsernameLength = 32   // Максимальная длина username

	// Rate limiting
	DefaultRequestsPerMinute = 30
	RateLimitWindow          = time.Minute
)

var (
	usernameRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	tagRegex      = regexp.MustCompile(`<[^>]+>`)
)

// Sender отправляет запросы к Bot API. *tgbotapi.BotAPI реализует этот интерфейс.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RateLimiter простой rate limiter для пользователей
type RateLimiter struct {
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	mutex    sync.Mutex
}

// NewRateLimiter создает rate limiter на limit запросов в минуту
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   RateLimitWindow,
		now:      time.Now,
	}
}

// IsAllowed проверяет, разрешен ли запрос для пользователя
func (rl *RateLimiter) IsAllowed(userID int64) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()

	// Удаляем старые запросы
	valid := rl.requests[userID][:0]
	for _, t := range rl.requests[userID] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[userID] = valid
		return false
	}

	rl.requests[userID] = append(valid, now)
	return true
}

// chatLocks не дает обрабатывать два обновления одного чата одновременно
type chatLocks struct {
	mu   sync.Mutex
	busy map[int64]struct{}
}

func newChatLocks() *chatLocks {
	return &chatLocks{busy: make(map[int64]struct{})}
}

func (l *chatLocks) tryLock(chatID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[chatID]; ok {
		return false
	}
	l.busy[chatID] = struct{}{}
	return true
}

func (l *chatLocks) unlock(chatID int64) {
	l.mu.Lock()
	delete(l.busy, chatID)
	l.mu.Unlock()
}

// sendError ошибка Bot API при отправке сообщения
type sendError struct {
	err error
}

func (e *sendError) Error() string { return "ошибка отправки сообщения: " + e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

// flowError ошибка сценария с кнопкой повтора
type flowError struct {
	retry string
	err   error
}

func (e *flowError) Error() string { return e.err.Error() }
func (e *flowError) Unwrap() error { return e.err }

// retryable помечает ошибку кнопкой, которая повторит действие
func retryable(retry string, err error) error {
	return &flowError{retry: retry, err: err}
}

// request состояние обработки одного обновления
type request struct {
	chatID int64
	from   *tgbotapi.User
	user   *models.User
	sess   *session.Session
	drop   bool // удалить сессию вместо сохранения
}

// Handler представляет обработчик сообщений Telegram
type Handler struct {
	bot         Sender
	users       *user.Service
	tutor       *tutor.Service
	sessions    session.Store
	metrics     *metrics.Metrics
	messages    *Messages
	rateLimiter *RateLimiter
	locks       *chatLocks
	logger      *zap.Logger
}

// NewHandler создает новый обработчик
func NewHandler(
	bot Sender,
	users *user.Service,
	tutorService *tutor.Service,
	sessions session.Store,
	m *metrics.Metrics,
	rateLimit int,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bot:         bot,
		users:       users,
		tutor:       tutorService,
		sessions:    sessions,
		metrics:     m,
		messages:    NewMessages(),
		rateLimiter: NewRateLimiter(rateLimit),
		locks:       newChatLocks(),
		logger:      logger,
	}
}

// HandleUpdate обрабатывает входящее обновление.
// Ошибка возвращается только если не удалось отправить ответ в Telegram.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	var (
		chatID int64
		from   *tgbotapi.User
	)
	switch {
	case update.Message != nil:
		chatID, from = update.Message.Chat.ID, update.Message.From
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		chatID, from = update.CallbackQuery.Message.Chat.ID, update.CallbackQuery.From
	default:
		return nil
	}
	if from == nil || from.IsBot {
		return nil
	}

	if !h.rateLimiter.IsAllowed(from.ID) {
		h.logger.Warn("превышен лимит запросов", zap.Int64("user_id", from.ID))
		return h.notify(update, chatID, h.messages.RateLimited())
	}

	// Пока идет обработка предыдущего обновления чата, новые отклоняются
	if !h.locks.tryLock(chatID) {
		h.logger.Debug("чат занят, обновление отклонено", zap.Int64("chat_id", chatID))
		return h.notify(update, chatID, h.messages.Busy())
	}
	defer h.locks.unlock(chatID)

	if update.CallbackQuery != nil {
		h.answerCallback(update.CallbackQuery.ID, "")
	}

	u, err := h.users.Touch(ctx, from.ID,
		sanitizeUsername(from.UserName),
		sanitizeText(from.FirstName),
		sanitizeText(from.LastName),
	)
	if err != nil {
		h.logger.Error("ошибка получения пользователя", zap.Error(err), zap.Int64("user_id", from.ID))
		return h.send(chatID, h.messages.Error(), nil)
	}

	sess, err := h.sessions.Get(ctx, chatID)
	if err != nil {
		h.logger.Error("ошибка получения сессии", zap.Error(err), zap.Int64("chat_id", chatID))
		return h.send(chatID, h.messages.Error(), nil)
	}

	r := &request{chatID: chatID, from: from, user: u, sess: sess}
	stage := sess.Stage

	err = h.route(ctx, r, update)

	var transportErr *sendError
	if err != nil && !errors.As(err, &transportErr) {
		h.logger.Error("ошибка обработки обновления",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.String("stage", string(r.sess.Stage)))

		retry := ""
		var fe *flowError
		if errors.As(err, &fe) {
			retry = fe.retry
		}
		err = h.send(chatID, h.messages.Error(), retryKeyboard(retry))
	}

	h.persist(ctx, r, stage)
	return err
}

// persist сохраняет сессию после обработки обновления
func (h *Handler) persist(ctx context.Context, r *request, before session.Stage) {
	if r.drop {
		if err := h.sessions.Delete(ctx, r.chatID); err != nil {
			h.logger.Error("ошибка удаления сессии", zap.Error(err), zap.Int64("chat_id", r.chatID))
		}
		return
	}

	if r.sess.Stage != before {
		h.metrics.RecordStage(stageLabel(r.sess.Stage))
	}
	if err := h.sessions.Save(ctx, r.sess); err != nil {
		h.logger.Error("ошибка сохранения сессии", zap.Error(err), zap.Int64("chat_id", r.chatID))
	}
}

func stageLabel(s session.Stage) string {
	if s == session.StageNew {
		return "new"
	}
	return string(s)
}

// route выбирает обработчик по типу обновления, команде и этапу диалога
func (h *Handler) route(ctx context.Context, r *request, update tgbotapi.Update) error {
	if cb := update.CallbackQuery; cb != nil {
		h.logger.Info("обрабатываем callback",
			zap.String("data", cb.Data),
			zap.Int64("user_id", r.from.ID),
			zap.String("stage", string(r.sess.Stage)))
		return h.handleCallback(ctx, r, cb.Data)
	}

	msg := update.Message
	h.logger.Debug("получено сообщение",
		zap.Int64("chat_id", r.chatID),
		zap.String("username", msg.From.UserName),
		zap.Bool("contact", msg.Contact != nil))

	if msg.IsCommand() {
		return h.handleCommand(ctx, r, msg)
	}
	return h.handleText(ctx, r, msg)
}

// handleCommand обрабатывает команды
func (h *Handler) handleCommand(ctx context.Context, r *request, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		if !r.user.IsRegistered() {
			return h.startRegistration(r)
		}
		r.sess.Reset()
		return h.showMenu(r)

	case "menu", "cancel":
		if !r.user.IsRegistered() {
			return h.startRegistration(r)
		}
		r.sess.Reset()
		return h.showMenu(r)

	case "profile":
		if !r.user.IsRegistered() {
			return h.send(r.chatID, h.messages.NeedRegistration(), nil)
		}
		return h.showProfile(ctx, r)

	case "help":
		return h.send(r.chatID, h.messages.Help(), nil)

	case "clear":
		return h.clearData(ctx, r)

	default:
		return h.send(r.chatID, h.messages.UnknownCommand(), nil)
	}
}

// handleText обрабатывает обычные сообщения в зависимости от этапа диалога
func (h *Handler) handleText(ctx context.Context, r *request, msg *tgbotapi.Message) error {
	registering := r.sess.Stage == session.StageRegistrationName || r.sess.Stage == session.StageRegistrationPhone

	switch {
	case registering && r.user.IsRegistered():
		r.sess.Reset()
		return h.showMenu(r)
	case r.sess.Stage == session.StageRegistrationName:
		return h.handleName(r, msg.Text)
	case r.sess.Stage == session.StageRegistrationPhone:
		return h.handlePhone(ctx, r, msg)
	case !r.user.IsRegistered():
		return h.startRegistration(r)
	case r.sess.Stage == session.StageTest:
		return h.send(r.chatID, h.messages.AnswerWithButtons(), nil)
	default:
		return h.send(r.chatID, h.messages.UseButtons(), menuKeyboard(r.user))
	}
}

// handleCallback обрабатывает inline кнопки
func (h *Handler) handleCallback(ctx context.Context, r *request, data string) error {
	if !r.user.IsRegistered() {
		if r.sess.Stage == session.StageRegistrationName || r.sess.Stage == session.StageRegistrationPhone {
			return h.send(r.chatID, h.messages.NeedRegistration(), nil)
		}
		return h.startRegistration(r)
	}

	cb, err := parseCallback(data)
	if err != nil {
		h.logger.Warn("неизвестный callback", zap.String("data", data), zap.Error(err))
		return h.sendStale(r)
	}

	switch cb.action {
	case cbMainMenu, cbBackToMenu:
		r.sess.Reset()
		return h.showMenu(r)
	case cbStartTest:
		return h.startTest(ctx, r)
	case prefixTestAnswer:
		return h.answerTest(ctx, r, cb.value)
	case cbRetryAnalysis:
		return h.finishTest(ctx, r)
	case cbGetProgram:
		return h.generatePlan(ctx, r)
	case cbShowPlan:
		return h.showPlan(ctx, r)
	case cbShowProgress:
		return h.showProgress(ctx, r)
	case cbStartLearning:
		return h.startLearning(ctx, r)
	case prefixCompleteTopic:
		return h.completeTopic(ctx, r, cb.plan, cb.topic)
	case cbStartExercises:
		return h.startExercises(r)
	case prefixExercise:
		return h.showExercise(r, cb.topic, cb.num, false)
	case prefixAnswer:
		return h.showExercise(r, cb.topic, cb.num, true)
	case prefixQuiz:
		return h.showQuiz(r, cb.topic, cb.num)
	case prefixQuizAnswer:
		return h.answerQuiz(r, cb.topic, cb.num, cb.value)
	case cbSelectLevel:
		return h.send(r.chatID, h.messages.SelectLevel(), levelKeyboard())
	case prefixLevel:
		return h.selectLevel(ctx, r, cb.value)
	case cbProfile:
		return h.showProfile(ctx, r)
	}

	return h.sendStale(r)
}

func (h *Handler) showMenu(r *request) error {
	return h.send(r.chatID, h.messages.Menu(r.user), menuKeyboard(r.user))
}

func (h *Handler) sendStale(r *request) error {
	return h.send(r.chatID, h.messages.Stale(), backToMenuKeyboard())
}

// clearData удаляет данные пользователя и сессию (отладка)
func (h *Handler) clearData(ctx context.Context, r *request) error {
	if err := h.users.Delete(ctx, r.from.ID); err != nil {
		return err
	}
	r.drop = true
	h.logger.Info("данные пользователя очищены", zap.Int64("user_id", r.from.ID))
	return h.send(r.chatID, h.messages.DataCleared(), tgbotapi.NewRemoveKeyboard(true))
}

// send отправляет HTML сообщение. Если Telegram не принял разметку, отправляет обычный текст.
func (h *Handler) send(chatID int64, text string, keyboard interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}

	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("ошибка отправки HTML сообщения, отправляем как обычный текст",
			zap.Int64("chat_id", chatID),
			zap.Error(err))

		msg.ParseMode = ""
		msg.Text = stripHTMLTags(text)
		if _, err := h.bot.Send(msg); err != nil {
			return &sendError{err: err}
		}
	}
	return nil
}

// notify отвечает на обновление без обработки: всплывающим уведомлением для кнопки или сообщением
func (h *Handler) notify(update tgbotapi.Update, chatID int64, text string) error {
	if update.CallbackQuery != nil {
		h.answerCallback(update.CallbackQuery.ID, text)
		return nil
	}
	return h.send(chatID, text, nil)
}

// answerCallback убирает "загрузку" с кнопки
func (h *Handler) answerCallback(id, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		h.logger.Warn("ошибка ответа на callback", zap.Error(err))
	}
}

// stripHTMLTags убирает теги и раскрывает HTML сущности
func stripHTMLTags(text string) string {
	return html.UnescapeString(tagRegex.ReplaceAllString(text, ""))
}

// sanitizeText очищает текст от потенциально опасного содержимого
func sanitizeText(text string) string {
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r", "")

	return strings.TrimSpace(text)
}

// sanitizeUsername очищает username от опасных символов
func sanitizeUsername(username string) string {
	if len(username) > MaxUsernameLength {
		username = username[:MaxUsernameLength]
	}
	return usernameRegex.ReplaceAllString(username, "")
}
