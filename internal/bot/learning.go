package bot

import (
	"context"
	"errors"

	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/internal/user"
	"github.com/Vada521/englishai/pkg/models"

	"go.uber.org/zap"
)

// activePlan возвращает план или показывает сообщение об его отсутствии (nil, nil)
func (h *Handler) activePlan(ctx context.Context, r *request) (*models.LearningPlan, error) {
	plan, err := h.users.ActivePlan(ctx, r.from.ID)
	if errors.Is(err, user.ErrNoPlan) {
		return nil, h.send(r.chatID, h.messages.NoPlan(), noPlanKeyboard(r.user))
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (h *Handler) showPlan(ctx context.Context, r *request) error {
	plan, err := h.activePlan(ctx, r)
	if plan == nil {
		return err
	}
	r.sess.Reset()
	return h.send(r.chatID, tutor.FormatPlan(plan), planKeyboard())
}

func (h *Handler) showProgress(ctx context.Context, r *request) error {
	plan, err := h.activePlan(ctx, r)
	if plan == nil {
		return err
	}
	return h.send(r.chatID, h.messages.Progress(plan), planKeyboard())
}

// startLearning готовит урок по первой непройденной теме плана
func (h *Handler) startLearning(ctx context.Context, r *request) error {
	plan, err := h.activePlan(ctx, r)
	if plan == nil {
		return err
	}

	index, ok := plan.FirstIncomplete()
	if !ok {
		return h.send(r.chatID, h.messages.AllTopicsCompleted(), topicCompletedKeyboard(false))
	}
	topic := plan.Topics[index]

	if err := h.send(r.chatID, h.messages.PreparingLesson(topic.Name), nil); err != nil {
		return err
	}

	level := plan.CurrentLevel
	if r.user.Level.IsValid() {
		level = r.user.Level
	}
	var lesson *models.Lesson
	err = h.askInThread(ctx, r, cbStartLearning, func(threadID string) (err error) {
		lesson, err = h.tutor.GenerateLesson(ctx, threadID, level, topic)
		return err
	})
	if err != nil {
		return retryable(cbStartLearning, err)
	}

	r.sess.Reset()
	r.sess.Stage = session.StageLearning
	r.sess.Lesson = &session.LessonState{PlanID: plan.ID, TopicIndex: index, Topic: topic, Lesson: lesson}

	h.logger.Info("урок подготовлен",
		zap.Int64("user_id", r.from.ID),
		zap.Int("topic", index),
		zap.Int("exercises", len(lesson.Exercises)),
		zap.Int("quiz", len(lesson.Quiz)))
	return h.send(r.chatID, tutor.FormatLesson(index, topic, lesson), lessonKeyboard(plan.ID, index, lesson))
}

// completeTopic отмечает тему пройденной по подтверждению пользователя.
// Кнопка из урока по другому плану считается устаревшей.
func (h *Handler) completeTopic(ctx context.Context, r *request, planID int64, index int) error {
	plan, err := h.users.CompleteTopic(ctx, r.from.ID, planID, index)
	if errors.Is(err, user.ErrNoPlan) {
		return h.send(r.chatID, h.messages.NoPlan(), noPlanKeyboard(r.user))
	}
	if errors.Is(err, user.ErrStalePlan) {
		h.logger.Info("отметка темы устаревшего плана",
			zap.Int64("user_id", r.from.ID),
			zap.Int64("plan_id", planID),
			zap.Int("topic", index))
		return h.sendStale(r)
	}
	if err != nil {
		return err
	}
	h.metrics.RecordTopicCompleted(string(plan.CurrentLevel))

	r.sess.Reset()
	r.user.LearningPlan = plan

	if _, ok := plan.FirstIncomplete(); !ok {
		return h.send(r.chatID, h.messages.AllTopicsCompleted(), topicCompletedKeyboard(false))
	}
	done, total := plan.Progress()
	return h.send(r.chatID, h.messages.TopicCompleted(plan.Topics[index].Name, done, total), topicCompletedKeyboard(true))
}

// lessonFor возвращает урок из сессии, если он относится к теме кнопки
func (h *Handler) lessonFor(r *request, topic int) (*models.Lesson, bool) {
	st := r.sess.Lesson
	if st == nil || st.Lesson == nil || st.TopicIndex != topic {
		return nil, false
	}
	if r.sess.Stage != session.StageLearning && r.sess.Stage != session.StageExercise {
		return nil, false
	}
	return st.Lesson, true
}

func (h *Handler) startExercises(r *request) error {
	st := r.sess.Lesson
	if st == nil {
		return h.sendStale(r)
	}
	if len(st.Lesson.Exercises) > 0 {
		return h.showExercise(r, st.TopicIndex, 0, false)
	}
	if len(st.Lesson.Quiz) > 0 {
		return h.showQuiz(r, st.TopicIndex, 0)
	}
	return h.send(r.chatID, h.messages.NoExercises(), lessonKeyboard(st.PlanID, st.TopicIndex, st.Lesson))
}

// showExercise показывает упражнение, при showAnswer вместе с ответом
func (h *Handler) showExercise(r *request, topic, num int, showAnswer bool) error {
	lesson, ok := h.lessonFor(r, topic)
	if !ok || num >= len(lesson.Exercises) {
		return h.sendStale(r)
	}

	r.sess.Stage = session.StageExercise
	text := tutor.FormatExercise(num, len(lesson.Exercises), lesson.Exercises[num], showAnswer)
	return h.send(r.chatID, text, exerciseKeyboard(r.sess.Lesson.PlanID, topic, num, lesson))
}

func (h *Handler) showQuiz(r *request, topic, num int) error {
	lesson, ok := h.lessonFor(r, topic)
	if !ok || num >= len(lesson.Quiz) {
		return h.sendStale(r)
	}

	r.sess.Stage = session.StageExercise
	q := lesson.Quiz[num]
	return h.send(r.chatID, tutor.FormatQuizItem(num, len(lesson.Quiz), q), quizKeyboard(topic, num, q))
}

func (h *Handler) answerQuiz(r *request, topic, num int, letter string) error {
	lesson, ok := h.lessonFor(r, topic)
	if !ok || num >= len(lesson.Quiz) {
		return h.sendStale(r)
	}

	q := lesson.Quiz[num]
	chosen := int(letter[0] - 'a')
	if chosen >= len(q.Options) {
		return h.sendStale(r)
	}
	return h.send(r.chatID, tutor.FormatQuizResult(q, chosen), quizResultKeyboard(r.sess.Lesson.PlanID, topic, num, lesson))
}
