package tutor

import (
	"fmt"
	"html"
	"strings"

	"github.com/Vada521/englishai/pkg/models"
)

const (
	// MaxMessageLength ограничение Telegram на длину сообщения
	MaxMessageLength = 4096
	// TheoryLimit сколько символов теории показывается в уроке
	TheoryLimit = 2000

	maxExamples      = 5
	maxListItemRunes = 300
)

// OptionLetters буквы вариантов ответа
var OptionLetters = []string{"a", "b", "c"}

// Truncate обрезает строку до limit символов (рун) и добавляет многоточие
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// fitMessage обрезает готовое HTML сообщение по границе строки, чтобы не разорвать теги
func fitMessage(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	cut := string(r[:MaxMessageLength-4])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n..."
}

func esc(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(title)
	for _, item := range items {
		b.WriteString("\n• ")
		b.WriteString(esc(Truncate(item, maxListItemRunes)))
	}
}

// FormatQuestion форматирует вопрос теста
func FormatQuestion(index, total int, q models.TestQuestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 <b>Вопрос %d из %d</b>\n\n%s\n", index+1, total, esc(q.Question))
	for i, opt := range q.Options {
		if i >= len(OptionLetters) {
			break
		}
		fmt.Fprintf(&b, "\n%s) %s", strings.ToUpper(OptionLetters[i]), esc(opt))
	}
	return b.String()
}

// FormatAnalysis форматирует результат анализа теста
func FormatAnalysis(a *models.TestAnalysis) string {
	var b strings.Builder
	b.WriteString("📊 <b>Результаты теста</b>\n\n")
	fmt.Fprintf(&b, "✅ Правильных ответов: <b>%d из %d</b>\n", a.CorrectAnswers, a.Total)
	fmt.Fprintf(&b, "🎯 Ваш уровень: <b>%s</b>", esc(a.Level.String()))

	if a.Explanation != "" {
		b.WriteString("\n\n")
		b.WriteString(esc(Truncate(a.Explanation, 1000)))
	}

	writeList(&b, "💪 <b>Сильные стороны:</b>", a.Strengths)
	writeList(&b, "📉 <b>Над чем поработать:</b>", a.Weaknesses)
	writeList(&b, "💡 <b>Рекомендации:</b>", a.Recommendations)

	return fitMessage(b.String())
}

// FormatPlan форматирует учебный план
func FormatPlan(plan *models.LearningPlan) string {
	done, total := plan.Progress()

	var b strings.Builder
	b.WriteString("📚 <b>Ваш учебный план</b>\n\n")
	fmt.Fprintf(&b, "Текущий уровень: <b>%s</b>\n", esc(plan.CurrentLevel.String()))
	fmt.Fprintf(&b, "Цель: <b>%s</b>\n", esc(plan.TargetLevel.String()))
	fmt.Fprintf(&b, "Прогресс: %d из %d тем\n", done, total)

	for i, t := range plan.Topics {
		mark := "⬜"
		if t.Completed {
			mark = "✅"
		}
		fmt.Fprintf(&b, "\n%s %d. <b>%s</b>", mark, i+1, esc(Truncate(t.Name, 200)))
		if t.Duration != "" {
			fmt.Fprintf(&b, " (%s)", esc(Truncate(t.Duration, 50)))
		}
		if t.Description != "" {
			fmt.Fprintf(&b, "\n   %s", esc(Truncate(t.Description, maxListItemRunes)))
		}
		if len(t.Objectives) > 0 {
			fmt.Fprintf(&b, "\n   🎯 %s", esc(Truncate(t.Objectives.Join("; "), maxListItemRunes)))
		}
		b.WriteString("\n")
	}

	return fitMessage(b.String())
}

// FormatLesson форматирует урок: теория (обрезанная) и примеры
func FormatLesson(topicIndex int, topic models.Topic, lesson *models.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 <b>Тема %d: %s</b>\n\n", topicIndex+1, esc(topic.Name))
	b.WriteString(esc(Truncate(lesson.Theory, TheoryLimit)))

	examples := []string(lesson.Examples)
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	writeList(&b, "📌 <b>Примеры:</b>", examples)

	if n := len(lesson.Exercises) + len(lesson.Quiz); n > 0 {
		fmt.Fprintf(&b, "\n\n✏️ Упражнений: %d, вопросов квиза: %d", len(lesson.Exercises), len(lesson.Quiz))
	}

	return fitMessage(b.String())
}

// FormatExercise форматирует упражнение. Ответ показывается только при showAnswer.
func FormatExercise(num, total int, ex models.Exercise, showAnswer bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✏️ <b>Упражнение %d из %d</b>\n\n%s", num+1, total, esc(Truncate(ex.Question, 1500)))

	if showAnswer {
		fmt.Fprintf(&b, "\n\n✅ <b>Ответ:</b> %s", esc(Truncate(ex.CorrectAnswer, 500)))
		if ex.Explanation != "" {
			fmt.Fprintf(&b, "\n💡 %s", esc(Truncate(ex.Explanation, 1000)))
		}
	}

	return fitMessage(b.String())
}

// FormatQuizItem форматирует вопрос квиза
func FormatQuizItem(num, total int, q models.QuizItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ <b>Квиз %d из %d</b>\n\n%s\n", num+1, total, esc(Truncate(q.Question, 1000)))
	for i, opt := range q.Options {
		if i >= len(OptionLetters) {
			break
		}
		fmt.Fprintf(&b, "\n%s) %s", strings.ToUpper(OptionLetters[i]), esc(Truncate(opt, 300)))
	}
	return fitMessage(b.String())
}

// FormatQuizResult форматирует разбор ответа на вопрос квиза
func FormatQuizResult(q models.QuizItem, chosen int) string {
	correct := q.CorrectIndex()

	var b strings.Builder
	switch {
	case correct < 0:
		fmt.Fprintf(&b, "📝 Правильный ответ: <b>%s</b>", esc(q.CorrectAnswer))
	case chosen == correct:
		fmt.Fprintf(&b, "✅ Верно! <b>%s</b>", esc(q.Options[correct]))
	default:
		fmt.Fprintf(&b, "❌ Неверно. Правильный ответ: <b>%s</b>", esc(q.Options[correct]))
	}

	if q.Explanation != "" {
		fmt.Fprintf(&b, "\n💡 %s", esc(Truncate(q.Explanation, 1000)))
	}
	return fitMessage(b.String())
}
