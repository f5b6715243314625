package bot

import (
	"context"
	"errors"

	"github.com/Vada521/englishai/internal/ai"
	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/pkg/models"

	"go.uber.org/zap"
)

// ensureThread создает тред ассистента при первом обращении к нему
func (h *Handler) ensureThread(ctx context.Context, r *request, retry string) (string, error) {
	if r.sess.ThreadID != "" {
		return r.sess.ThreadID, nil
	}

	threadID, err := h.tutor.NewThread(ctx)
	if err != nil {
		return "", retryable(retry, err)
	}
	r.sess.ThreadID = threadID
	h.logger.Debug("создан тред ассистента", zap.Int64("chat_id", r.chatID), zap.String("thread_id", threadID))
	return threadID, nil
}

// askInThread выполняет запрос к ассистенту в треде сессии. Если провайдер
// тред уже не знает, сессия получает новый тред и запрос повторяется один раз.
func (h *Handler) askInThread(ctx context.Context, r *request, retry string, ask func(threadID string) error) error {
	threadID, err := h.ensureThread(ctx, r, retry)
	if err != nil {
		return err
	}

	err = ask(threadID)
	if !errors.Is(err, ai.ErrThreadNotFound) {
		return err
	}

	h.logger.Warn("тред ассистента потерян, создается новый",
		zap.Int64("chat_id", r.chatID),
		zap.String("thread_id", threadID))
	r.sess.ThreadID = ""

	threadID, err = h.ensureThread(ctx, r, retry)
	if err != nil {
		return err
	}
	return ask(threadID)
}

// startTest готовит вопросы и показывает первый
func (h *Handler) startTest(ctx context.Context, r *request) error {
	threadID, err := h.ensureThread(ctx, r, cbStartTest)
	if err != nil {
		return err
	}

	if err := h.send(r.chatID, h.messages.PreparingTest(), nil); err != nil {
		return err
	}

	questions := h.tutor.GenerateTestQuestions(ctx, threadID)

	r.sess.Reset()
	r.sess.Stage = session.StageTest
	r.sess.Test = session.NewTestSession(questions)
	r.sess.Analysis = nil

	h.logger.Info("начат тест уровня",
		zap.Int64("user_id", r.from.ID),
		zap.Int("questions", len(questions)))
	return h.sendQuestion(r)
}

func (h *Handler) sendQuestion(r *request) error {
	test := r.sess.Test
	q, ok := test.CurrentQuestion()
	if !ok {
		return h.sendStale(r)
	}
	return h.send(r.chatID, tutor.FormatQuestion(test.Current, test.Total(), q), questionKeyboard(q))
}

// answerTest записывает ответ и показывает следующий вопрос или результат
func (h *Handler) answerTest(ctx context.Context, r *request, letter string) error {
	if r.sess.Stage != session.StageTest || r.sess.Test == nil || r.sess.Test.Done() {
		return h.sendStale(r)
	}

	if err := r.sess.Test.Answer(letter); err != nil {
		h.logger.Warn("некорректный ответ теста", zap.Int64("user_id", r.from.ID), zap.Error(err))
		return h.sendStale(r)
	}

	if !r.sess.Test.Done() {
		return h.sendQuestion(r)
	}
	return h.finishTest(ctx, r)
}

// finishTest отправляет ответы на анализ и сохраняет уровень.
// Ответы остаются в сессии, пока анализ не удался, чтобы его можно было повторить.
func (h *Handler) finishTest(ctx context.Context, r *request) error {
	test := r.sess.Test
	if r.sess.Stage != session.StageTest || !test.Done() {
		return h.sendStale(r)
	}

	if err := h.send(r.chatID, h.messages.Analyzing(), nil); err != nil {
		return err
	}

	var analysis *models.TestAnalysis
	err := h.askInThread(ctx, r, cbRetryAnalysis, func(threadID string) (err error) {
		analysis, err = h.tutor.AnalyzeTest(ctx, threadID, test.Answers)
		return err
	})
	if err != nil {
		return retryable(cbRetryAnalysis, err)
	}

	if err := h.users.SaveTestResult(ctx, r.from.ID, analysis); err != nil {
		return retryable(cbRetryAnalysis, err)
	}
	h.metrics.RecordTestCompleted(string(analysis.Level))

	r.user.Level = analysis.Level
	r.user.TestScore = analysis.CorrectAnswers
	r.user.HasCompletedTest = true

	r.sess.Reset()
	r.sess.Analysis = analysis

	h.logger.Info("тест уровня завершен",
		zap.Int64("user_id", r.from.ID),
		zap.String("level", string(analysis.Level)),
		zap.Int("correct", analysis.CorrectAnswers),
		zap.Int("total", analysis.Total))
	return h.send(r.chatID, tutor.FormatAnalysis(analysis), analysisKeyboard())
}

// generatePlan составляет и сохраняет программу обучения по уровню пользователя
func (h *Handler) generatePlan(ctx context.Context, r *request) error {
	analysis := r.sess.Analysis
	if analysis == nil || !analysis.Level.IsValid() {
		if !r.user.Level.IsValid() {
			return h.send(r.chatID, h.messages.NoLevel(), noPlanKeyboard(r.user))
		}
		analysis = &models.TestAnalysis{Level: r.user.Level}
	}
	// Уровень пользователя мог измениться после теста
	if r.user.Level.IsValid() && r.user.Level != analysis.Level {
		analysis = &models.TestAnalysis{Level: r.user.Level}
	}

	threadID, err := h.ensureThread(ctx, r, cbGetProgram)
	if err != nil {
		return err
	}

	r.sess.Stage = session.StagePlanGeneration
	if err := h.send(r.chatID, h.messages.PreparingPlan(), nil); err != nil {
		return err
	}

	plan := h.tutor.GeneratePlan(ctx, threadID, analysis)
	if err := h.users.SavePlan(ctx, r.from.ID, plan); err != nil {
		r.sess.Stage = session.StageMenu
		return retryable(cbGetProgram, err)
	}
	r.user.LearningPlan = plan

	r.sess.Reset()
	r.sess.Analysis = nil

	h.logger.Info("программа обучения сохранена",
		zap.Int64("user_id", r.from.ID),
		zap.Int64("plan_id", plan.ID),
		zap.Int("topics", len(plan.Topics)))
	return h.send(r.chatID, tutor.FormatPlan(plan), planKeyboard())
}
