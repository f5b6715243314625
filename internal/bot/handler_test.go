package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Vada521/englishai/internal/ai"
	"github.com/Vada521/englishai/internal/metrics"
	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/store/storetest"
	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/internal/user"
	"github.com/Vada521/englishai/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testChatID = int64(42)

type fakeSender struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks []tgbotapi.CallbackConfig
	failHTML  bool
	err       error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if f.failHTML && msg.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "сообщения не отправлялись")
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.sent = nil
	f.callbacks = nil
	f.mu.Unlock()
}

// scriptedAssistant отвечает по виду запроса, который узнает по началу промпта
type scriptedAssistant struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	lost    map[string]bool // треды, которых провайдер уже не знает
	asked   []string
}

const (
	analysisReply = `{"correct_answers": 7, "level": "B1", "explanation": "Хорошая база",
		"strengths": ["лексика"], "weaknesses": ["времена"], "recommendations": ["читать"]}`

	planReply = "```json\n" + `{"current_level": "B1", "target_level": "B2", "topics": [
		{"name": "Present Perfect", "description": "Опыт и результат", "duration": "1 неделя", "objectives": ["использовать have done"]},
		{"name": "Conditionals", "description": "Условные предложения", "duration": "1 неделя", "objectives": "If clauses"}
	]}` + "\n```"

	lessonReply = `{"theory": "Present Perfect <have + V3>", "examples": ["I have seen it"],
		"exercises": [
			{"question": "I ___ (see) it", "correct_answer": "have seen", "explanation": "опыт"},
			{"question": "She ___ (go) home", "correct_answer": "has gone", "explanation": "результат"}
		],
		"quiz": [
			{"question": "Choose", "options": ["have went", "have gone", "has go"], "correct_answer": "b", "explanation": "V3"}
		]}`
)

func newScriptedAssistant() *scriptedAssistant {
	return &scriptedAssistant{
		replies: map[string]string{
			tutor.KindQuestions: questionsJSON(10),
			tutor.KindAnalysis:  analysisReply,
			tutor.KindPlan:      planReply,
			tutor.KindLesson:    lessonReply,
		},
		errs: map[string]error{},
		lost: map[string]bool{},
	}
}

func kindOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "Составь тест"):
		return tutor.KindQuestions
	case strings.HasPrefix(prompt, "Проанализируй"):
		return tutor.KindAnalysis
	case strings.HasPrefix(prompt, "Составь персональный"):
		return tutor.KindPlan
	default:
		return tutor.KindLesson
	}
}

func (a *scriptedAssistant) CreateThread(context.Context) (string, error) { return "thread_1", nil }

func (a *scriptedAssistant) Ask(_ context.Context, threadID, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lost[threadID] {
		return "", fmt.Errorf("ошибка OpenAI API: %w", ai.ErrThreadNotFound)
	}
	kind := kindOf(prompt)
	a.asked = append(a.asked, kind)
	if err := a.errs[kind]; err != nil {
		return "", err
	}
	return a.replies[kind], nil
}

func (a *scriptedAssistant) Name() string { return "scripted" }

func (a *scriptedAssistant) fail(kind string, err error) {
	a.mu.Lock()
	a.errs[kind] = err
	a.mu.Unlock()
}

func questionsJSON(n int) string {
	qs := make([]models.TestQuestion, n)
	for i := range qs {
		qs[i] = models.TestQuestion{
			Question: fmt.Sprintf("Question %d?", i+1),
			Options:  []string{"first", "second", "third"},
		}
	}
	data, _ := json.Marshal(qs)
	return string(data)
}

type testEnv struct {
	handler   *Handler
	sender    *fakeSender
	store     *storetest.Store
	sessions  *session.MemoryStore
	assistant *scriptedAssistant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	assistant := newScriptedAssistant()
	env := newTestEnvWith(t, assistant)
	env.assistant = assistant
	return env
}

func newTestEnvWith(t *testing.T, assistant ai.Assistant) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	m := metrics.New(logger, prometheus.NewRegistry())
	st := storetest.New()
	sessions := session.NewMemoryStore(0)
	sender := &fakeSender{}

	h := NewHandler(sender, user.NewService(st, logger), tutor.NewService(assistant, m, logger), sessions, m, 1000, logger)
	return &testEnv{handler: h, sender: sender, store: st, sessions: sessions}
}

// kindClient chat completions клиент, отвечающий по виду последнего запроса
type kindClient struct {
	replies map[string]string
}

func (c kindClient) GenerateResponse(_ context.Context, messages []ai.Message, _ ai.GenerationOptions) (*ai.Response, error) {
	prompt := messages[len(messages)-1].Content
	return &ai.Response{Content: c.replies[kindOf(prompt)]}, nil
}

func (c kindClient) GetName() string { return "fake" }

func (e *testEnv) registered(t *testing.T, level models.Level) {
	t.Helper()
	e.store.PutUser(&models.User{TelegramID: testChatID, FirstName: "Anna", Name: "Анна", Phone: "+79991234567", Level: level})
}

func (e *testEnv) do(t *testing.T, update tgbotapi.Update) {
	t.Helper()
	require.NoError(t, e.handler.HandleUpdate(context.Background(), update))
}

// withThread сохраняет сессию чата с тредом, созданным до перезапуска процесса
func (e *testEnv) withThread(t *testing.T, threadID string) {
	t.Helper()
	require.NoError(t, e.sessions.Save(context.Background(),
		&session.Session{ChatID: testChatID, Stage: session.StageMenu, ThreadID: threadID}))
}

func (e *testEnv) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), testChatID)
	require.NoError(t, err)
	return s
}

func textUpdate(text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testChatID, FirstName: "Anna", UserName: "anna"},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func contactUpdate(phone string, owner int64) tgbotapi.Update {
	u := textUpdate("")
	u.Message.Contact = &tgbotapi.Contact{PhoneNumber: phone, FirstName: "Anna", UserID: owner}
	return u
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testChatID, FirstName: "Anna"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: testChatID}},
		Data:    data,
	}}
}

func inlineData(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "ожидалась inline клавиатура, получено %T", msg.ReplyMarkup)

	var data []string
	for _, r := range kb.InlineKeyboard {
		for _, b := range r {
			if b.CallbackData != nil {
				data = append(data, *b.CallbackData)
			}
		}
	}
	return data
}

func TestRegistration_ContactShare(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, textUpdate("/start"))
	assert.Contains(t, env.sender.last(t).Text, "Как я могу к вам обращаться")
	assert.Equal(t, session.StageRegistrationName, env.session(t).Stage)

	env.do(t, textUpdate("  Анна  "))
	msg := env.sender.last(t)
	assert.Contains(t, msg.Text, "Анна")
	_, isReply := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, isReply)
	assert.Equal(t, session.StageRegistrationPhone, env.session(t).Stage)

	env.do(t, contactUpdate("79991234567", testChatID))

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.Equal(t, "Анна", u.Name)
	assert.Equal(t, "79991234567", u.Phone)
	assert.Equal(t, "anna", u.Username)

	assert.Contains(t, env.sender.last(t).Text, "Главное меню")
	assert.Contains(t, inlineData(t, env.sender.last(t)), cbStartTest)
	assert.Equal(t, session.StageMenu, env.session(t).Stage)
}

func TestRegistration_PhoneAsText(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, textUpdate("/start"))
	env.do(t, textUpdate("Анна"))

	env.do(t, textUpdate("не скажу"))
	assert.Contains(t, env.sender.last(t).Text, "Не получилось распознать номер")
	assert.Equal(t, session.StageRegistrationPhone, env.session(t).Stage)

	env.do(t, textUpdate("+7 (999) 123-45-67"))
	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.Equal(t, "+79991234567", u.Phone)
	assert.True(t, u.IsRegistered())
}

func TestRegistration_RejectsForeignContact(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, textUpdate("/start"))
	env.do(t, textUpdate("Анна"))
	env.do(t, contactUpdate("79990000000", 777))

	assert.Contains(t, env.sender.last(t).Text, "не контакт другого человека")
	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.False(t, u.IsRegistered())
}

func TestRegistration_InvalidName(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, textUpdate("/start"))
	env.do(t, textUpdate(strings.Repeat("я", 65)))

	assert.Contains(t, env.sender.last(t).Text, "напишите ваше имя")
	assert.Equal(t, session.StageRegistrationName, env.session(t).Stage)
}

func TestCallbackFromUnregisteredUserStartsRegistration(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, callbackUpdate(cbStartTest))

	assert.Contains(t, env.sender.last(t).Text, "Добро пожаловать")
	assert.Equal(t, session.StageRegistrationName, env.session(t).Stage)
	assert.Empty(t, env.assistant.asked)
	require.Len(t, env.sender.callbacks, 1)
}

func TestPlacementTest_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")

	env.do(t, callbackUpdate(cbStartTest))

	first := env.sender.last(t)
	assert.Contains(t, first.Text, "Question 1?")
	assert.Equal(t, []string{"test_a", "test_b", "test_c"}, inlineData(t, first))

	for i := 0; i < tutor.QuestionsCount; i++ {
		env.do(t, callbackUpdate(testAnswerData("b")))
	}

	result := env.sender.last(t)
	assert.Contains(t, result.Text, "B1")
	assert.Contains(t, inlineData(t, result), cbGetProgram)

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelB1, u.Level)
	assert.Equal(t, 7, u.TestScore)
	assert.True(t, u.HasCompletedTest)

	results, err := env.store.TestResult().ListByUser(context.Background(), testChatID, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tutor.QuestionsCount, results[0].Total)

	s := env.session(t)
	assert.Equal(t, session.StageMenu, s.Stage)
	assert.Nil(t, s.Test)
	require.NotNil(t, s.Analysis)
	assert.Equal(t, "thread_1", s.ThreadID)
}

func TestPlacementTest_FallbackQuestions(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")
	env.assistant.replies[tutor.KindQuestions] = questionsJSON(3)

	env.do(t, callbackUpdate(cbStartTest))

	s := env.session(t)
	require.NotNil(t, s.Test)
	assert.Equal(t, tutor.DefaultQuestions(), s.Test.Questions)
}

func TestPlacementTest_AnalysisErrorOffersRetry(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")
	env.assistant.fail(tutor.KindAnalysis, errors.New("run failed"))

	env.do(t, callbackUpdate(cbStartTest))
	for i := 0; i < tutor.QuestionsCount; i++ {
		env.do(t, callbackUpdate(testAnswerData("a")))
	}

	apology := env.sender.last(t)
	assert.Equal(t, NewMessages().Error(), apology.Text)
	assert.Equal(t, []string{cbRetryAnalysis, cbBackToMenu}, inlineData(t, apology))

	s := env.session(t)
	assert.Equal(t, session.StageTest, s.Stage)
	require.NotNil(t, s.Test)
	assert.Len(t, s.Test.Answers, tutor.QuestionsCount)

	env.assistant.fail(tutor.KindAnalysis, nil)
	env.do(t, callbackUpdate(cbRetryAnalysis))

	assert.Contains(t, env.sender.last(t).Text, "B1")
	assert.Equal(t, session.StageMenu, env.session(t).Stage)
}

func TestStaleTestAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)

	env.do(t, callbackUpdate(testAnswerData("b")))

	msg := env.sender.last(t)
	assert.Contains(t, msg.Text, "неактуальна")
	assert.Equal(t, []string{cbBackToMenu}, inlineData(t, msg))
}

func TestTextDuringTestAsksForButtons(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")

	env.do(t, callbackUpdate(cbStartTest))
	env.do(t, textUpdate("b"))

	assert.Equal(t, NewMessages().AnswerWithButtons(), env.sender.last(t).Text)
	assert.Empty(t, env.session(t).Test.Answers)
}

func TestGeneratePlan_UsesUserLevel(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)

	env.do(t, callbackUpdate(cbGetProgram))

	msg := env.sender.last(t)
	assert.Contains(t, msg.Text, "Present Perfect")
	assert.Contains(t, inlineData(t, msg), cbStartLearning)

	plans := env.store.Plans(testChatID)
	require.Len(t, plans, 1)
	assert.Equal(t, models.LevelB2, plans[0].TargetLevel)
	assert.Len(t, plans[0].Topics, 2)

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	require.NotNil(t, u.LearningPlan)
	assert.Equal(t, plans[0].ID, u.LearningPlan.ID)
}

func TestGeneratePlan_FallbackOnError(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)
	env.assistant.fail(tutor.KindPlan, errors.New("timeout"))

	env.do(t, callbackUpdate(cbGetProgram))

	plans := env.store.Plans(testChatID)
	require.Len(t, plans, 1)
	want := tutor.DefaultPlan(models.LevelA2)
	require.Len(t, plans[0].Topics, len(want.Topics))
	for i, topic := range want.Topics {
		assert.Equal(t, topic.Name, plans[0].Topics[i].Name)
	}
}

func TestGeneratePlan_WithoutLevel(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")

	env.do(t, callbackUpdate(cbGetProgram))

	assert.Equal(t, NewMessages().NoLevel(), env.sender.last(t).Text)
	assert.Empty(t, env.store.Plans(testChatID))
	assert.Empty(t, env.assistant.asked)
}

func TestLearningFlow(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)
	env.do(t, callbackUpdate(cbGetProgram))
	require.Len(t, env.store.Plans(testChatID), 1)
	planID := env.store.Plans(testChatID)[0].ID

	env.do(t, callbackUpdate(cbStartLearning))
	lesson := env.sender.last(t)
	assert.Contains(t, lesson.Text, "Тема 1: Present Perfect")
	assert.Contains(t, lesson.Text, "&lt;have + V3&gt;")
	assert.Equal(t, []string{cbStartExercises, completeTopicData(planID, 0), cbShowPlan}, inlineData(t, lesson))
	assert.Equal(t, session.StageLearning, env.session(t).Stage)

	env.do(t, callbackUpdate(cbStartExercises))
	ex := env.sender.last(t)
	assert.Contains(t, ex.Text, "Упражнение 1 из 2")
	assert.NotContains(t, ex.Text, "have seen")
	assert.Equal(t, session.StageExercise, env.session(t).Stage)

	env.do(t, callbackUpdate(answerData(0, 0)))
	assert.Contains(t, env.sender.last(t).Text, "have seen")

	env.do(t, callbackUpdate(exerciseData(0, 1)))
	last := env.sender.last(t)
	assert.Contains(t, last.Text, "Упражнение 2 из 2")
	assert.Contains(t, inlineData(t, last), quizData(0, 0))

	env.do(t, callbackUpdate(quizData(0, 0)))
	assert.Equal(t, []string{quizAnswerData(0, 0, "a"), quizAnswerData(0, 0, "b"), quizAnswerData(0, 0, "c")},
		inlineData(t, env.sender.last(t)))

	env.do(t, callbackUpdate(quizAnswerData(0, 0, "b")))
	res := env.sender.last(t)
	assert.Contains(t, res.Text, "Верно")
	assert.Contains(t, inlineData(t, res), completeTopicData(planID, 0))

	env.do(t, callbackUpdate(completeTopicData(planID, 0)))
	assert.Contains(t, env.sender.last(t).Text, "Прогресс: 1 из 2")

	plans := env.store.Plans(testChatID)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Topics[0].Completed)
	assert.False(t, plans[0].Topics[1].Completed)

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.True(t, u.LearningPlan.Topics[0].Completed)

	// следующий урок по второй теме
	env.do(t, callbackUpdate(cbStartLearning))
	assert.Contains(t, env.sender.last(t).Text, "Тема 2: Conditionals")

	env.do(t, callbackUpdate(completeTopicData(planID, 1)))
	assert.Equal(t, NewMessages().AllTopicsCompleted(), env.sender.last(t).Text)
	assert.Contains(t, inlineData(t, env.sender.last(t)), cbGetProgram)
}

func TestLearning_ExerciseForAnotherTopicIsStale(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)
	env.do(t, callbackUpdate(cbGetProgram))
	env.do(t, callbackUpdate(cbStartLearning))

	env.do(t, callbackUpdate(exerciseData(1, 0)))
	assert.Contains(t, env.sender.last(t).Text, "неактуальна")

	env.do(t, callbackUpdate(exerciseData(0, 9)))
	assert.Contains(t, env.sender.last(t).Text, "неактуальна")
}

func TestLearning_LessonErrorOffersRetry(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)
	env.do(t, callbackUpdate(cbGetProgram))
	env.assistant.fail(tutor.KindLesson, errors.New("expired"))

	env.do(t, callbackUpdate(cbStartLearning))

	msg := env.sender.last(t)
	assert.Equal(t, NewMessages().Error(), msg.Text)
	assert.Equal(t, []string{cbStartLearning, cbBackToMenu}, inlineData(t, msg))
	assert.Nil(t, env.session(t).Lesson)
}

func TestLearning_CompleteTopicFromReplacedPlanIsStale(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)
	env.do(t, callbackUpdate(cbGetProgram))
	oldPlan := env.store.Plans(testChatID)[0].ID

	env.do(t, callbackUpdate(cbStartLearning))
	assert.Contains(t, inlineData(t, env.sender.last(t)), completeTopicData(oldPlan, 0))

	// пользователь составил новую программу, а потом нажал кнопку в старом уроке
	env.do(t, callbackUpdate(cbGetProgram))
	env.do(t, callbackUpdate(completeTopicData(oldPlan, 0)))
	assert.Contains(t, env.sender.last(t).Text, "неактуальна")

	plans := env.store.Plans(testChatID)
	require.Len(t, plans, 2)
	for _, plan := range plans {
		for _, topic := range plan.Topics {
			assert.False(t, topic.Completed, "план %d тема %s", plan.ID, topic.Name)
		}
	}
}

func TestLostThread_ChatAssistantStartsOver(t *testing.T) {
	client := kindClient{replies: newScriptedAssistant().replies}
	env := newTestEnvWith(t, ai.NewChatAssistant(client, ai.GenerationOptions{}, zap.NewNop()))
	env.registered(t, "")
	env.withThread(t, "thread_from_previous_process")

	env.do(t, textUpdate("/menu"))
	env.do(t, callbackUpdate(cbStartTest))
	assert.Contains(t, env.sender.last(t).Text, "Question 1?")

	for i := 0; i < tutor.QuestionsCount; i++ {
		env.do(t, callbackUpdate(testAnswerData("a")))
	}

	assert.Contains(t, env.sender.last(t).Text, "B1")
	sess := env.session(t)
	assert.Equal(t, session.StageMenu, sess.Stage)
	require.NotNil(t, sess.Analysis)
	assert.Equal(t, models.LevelB1, sess.Analysis.Level)

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelB1, u.Level)
}

func TestLostThread_ReplacedWithNewThread(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)
	env.do(t, callbackUpdate(cbGetProgram))
	env.withThread(t, "thread_gone")
	env.assistant.lost["thread_gone"] = true

	env.do(t, callbackUpdate(cbStartLearning))

	assert.Contains(t, env.sender.last(t).Text, "Тема 1: Present Perfect")
	sess := env.session(t)
	assert.Equal(t, "thread_1", sess.ThreadID)
	assert.Equal(t, session.StageLearning, sess.Stage)
}

func TestLearning_NoPlan(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelB1)

	env.do(t, callbackUpdate(cbStartLearning))

	msg := env.sender.last(t)
	assert.Equal(t, NewMessages().NoPlan(), msg.Text)
	assert.Contains(t, inlineData(t, msg), cbGetProgram)
}

func TestSelectLevel(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, "")

	env.do(t, callbackUpdate(cbSelectLevel))
	assert.Contains(t, inlineData(t, env.sender.last(t)), levelData("C1"))

	env.do(t, callbackUpdate(levelData("B2")))
	assert.Contains(t, env.sender.last(t).Text, "B2 (Выше среднего)")

	u, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelB2, u.Level)

	env.do(t, callbackUpdate(levelData("Z9")))
	assert.Contains(t, env.sender.last(t).Text, "неактуальна")
}

func TestProfileCommand(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)

	env.do(t, textUpdate("/profile"))

	msg := env.sender.last(t)
	assert.Contains(t, msg.Text, "Профиль")
	assert.Contains(t, msg.Text, "+79991234567")
	assert.Contains(t, msg.Text, "Тест еще не пройден")
}

func TestClearCommand(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)
	env.do(t, textUpdate("/menu"))

	env.do(t, textUpdate("/clear"))

	assert.Equal(t, NewMessages().DataCleared(), env.sender.last(t).Text)
	_, err := env.store.User().GetByTelegramID(context.Background(), testChatID)
	assert.Error(t, err)
	assert.Equal(t, session.StageNew, env.session(t).Stage)
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, textUpdate("/foo"))

	assert.Equal(t, NewMessages().UnknownCommand(), env.sender.last(t).Text)
}

func TestBusyChatIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)
	require.True(t, env.handler.locks.tryLock(testChatID))

	env.do(t, callbackUpdate(cbStartTest))

	require.Len(t, env.sender.callbacks, 1)
	assert.Equal(t, NewMessages().Busy(), env.sender.callbacks[0].Text)
	assert.Empty(t, env.sender.sent)
	assert.Empty(t, env.assistant.asked)

	env.do(t, textUpdate("/menu"))
	assert.Equal(t, NewMessages().Busy(), env.sender.last(t).Text)

	env.handler.locks.unlock(testChatID)
	env.sender.reset()
	env.do(t, textUpdate("/menu"))
	assert.Contains(t, env.sender.last(t).Text, "Главное меню")
}

func TestRateLimitedUpdatesAreDropped(t *testing.T) {
	env := newTestEnv(t)
	env.registered(t, models.LevelA2)
	env.handler.rateLimiter = NewRateLimiter(1)

	env.do(t, textUpdate("/help"))
	env.do(t, textUpdate("/help"))

	assert.Equal(t, NewMessages().RateLimited(), env.sender.last(t).Text)
}

func TestSend_FallsBackToPlainText(t *testing.T) {
	env := newTestEnv(t)
	env.sender.failHTML = true

	require.NoError(t, env.handler.send(testChatID, "<b>Жирный</b> &amp; текст", nil))

	msg := env.sender.last(t)
	assert.Equal(t, "Жирный & текст", msg.Text)
	assert.Empty(t, msg.ParseMode)
}

func TestHandleUpdate_ReturnsTransportError(t *testing.T) {
	env := newTestEnv(t)
	env.sender.err = errors.New("forbidden: bot was blocked by the user")

	err := env.handler.HandleUpdate(context.Background(), textUpdate("/help"))

	var se *sendError
	assert.ErrorAs(t, err, &se)
}

func TestHandleUpdate_IgnoresBots(t *testing.T) {
	env := newTestEnv(t)
	u := textUpdate("/start")
	u.Message.From.IsBot = true

	env.do(t, u)

	assert.Empty(t, env.sender.sent)
}

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed(1))
	assert.True(t, rl.IsAllowed(1))
	assert.False(t, rl.IsAllowed(1))
	assert.True(t, rl.IsAllowed(2))

	now = now.Add(RateLimitWindow)
	assert.True(t, rl.IsAllowed(1))
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		want    callback
		wantErr bool
	}{
		{data: "start_test", want: callback{action: cbStartTest}},
		{data: "test_c", want: callback{action: prefixTestAnswer, value: "c"}},
		{data: "test_d", wantErr: true},
		{data: "complete_topic_7_3", want: callback{action: prefixCompleteTopic, plan: 7, topic: 3}},
		{data: "complete_topic_3", wantErr: true},
		{data: "complete_topic_7_-1", wantErr: true},
		{data: "exercise_2_4", want: callback{action: prefixExercise, topic: 2, num: 4}},
		{data: "answer_0_1", want: callback{action: prefixAnswer, topic: 0, num: 1}},
		{data: "quiz_1_0", want: callback{action: prefixQuiz, topic: 1, num: 0}},
		{data: "quizans_1_2_a", want: callback{action: prefixQuizAnswer, topic: 1, num: 2, value: "a"}},
		{data: "quizans_1_2", wantErr: true},
		{data: "exercise_x_1", wantErr: true},
		{data: "level_B2", want: callback{action: prefixLevel, value: "B2"}},
		{data: "something_else", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Anna", sanitizeText(" Anna\x00\r "))
	assert.Equal(t, "johndoe_1", sanitizeUsername("john.doe!_1"))
	assert.Len(t, sanitizeUsername(strings.Repeat("a", 40)), MaxUsernameLength)
}
