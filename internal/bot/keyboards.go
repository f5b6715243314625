package bot

import (
	"fmt"
	"strings"

	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func markup(rows ...[]tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// menuKeyboard главное меню зависит от того, известен ли уровень пользователя
func menuKeyboard(u *models.User) tgbotapi.InlineKeyboardMarkup {
	if u == nil || !u.Level.IsValid() {
		return markup(
			row(button("📝 Пройти тест", cbStartTest)),
			row(button("🎚 Выбрать уровень самостоятельно", cbSelectLevel)),
			row(button("👤 Профиль", cbProfile)),
		)
	}

	return markup(
		row(button("📚 План обучения", cbShowPlan)),
		row(button("▶️ Продолжить обучение", cbStartLearning)),
		row(button("🔄 Пройти тест заново", cbStartTest)),
		row(button("👤 Профиль", cbProfile)),
	)
}

func backToMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return markup(row(button("◀️ Вернуться в меню", cbBackToMenu)))
}

func retryKeyboard(retry string) tgbotapi.InlineKeyboardMarkup {
	if retry == "" || retry == cbMainMenu || retry == cbBackToMenu {
		return backToMenuKeyboard()
	}
	return markup(
		row(button("🔄 Попробовать снова", retry)),
		row(button("◀️ Вернуться в меню", cbBackToMenu)),
	)
}

// questionKeyboard по кнопке на каждый вариант ответа: "A) ...", "B) ...", "C) ..."
func questionKeyboard(q models.TestQuestion) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(q.Options))
	for i, opt := range q.Options {
		if i >= len(tutor.OptionLetters) {
			break
		}
		letter := tutor.OptionLetters[i]
		label := fmt.Sprintf("%s) %s", strings.ToUpper(letter), tutor.Truncate(opt, 60))
		rows = append(rows, row(button(label, testAnswerData(letter))))
	}
	return markup(rows...)
}

func analysisKeyboard() tgbotapi.InlineKeyboardMarkup {
	return markup(
		row(button("📚 Получить программу обучения", cbGetProgram)),
		row(button("🔄 Пройти тест заново", cbStartTest)),
		row(button("🏠 Главное меню", cbMainMenu)),
	)
}

func planKeyboard() tgbotapi.InlineKeyboardMarkup {
	return markup(
		row(button("▶️ Начать обучение", cbStartLearning)),
		row(button("📊 Показать прогресс", cbShowProgress)),
		row(button("◀️ Вернуться в меню", cbBackToMenu)),
	)
}

func noPlanKeyboard(u *models.User) tgbotapi.InlineKeyboardMarkup {
	if u != nil && u.Level.IsValid() {
		return markup(
			row(button("📚 Получить программу обучения", cbGetProgram)),
			row(button("◀️ Вернуться в меню", cbBackToMenu)),
		)
	}
	return markup(
		row(button("📝 Пройти тест", cbStartTest)),
		row(button("🎚 Выбрать уровень самостоятельно", cbSelectLevel)),
		row(button("◀️ Вернуться в меню", cbBackToMenu)),
	)
}

func lessonKeyboard(planID int64, topic int, lesson *models.Lesson) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(lesson.Exercises)+len(lesson.Quiz) > 0 {
		rows = append(rows, row(button("✍️ Начать упражнения", cbStartExercises)))
	}
	rows = append(rows,
		row(button("✅ Тема пройдена", completeTopicData(planID, topic))),
		row(button("◀️ Назад к плану", cbShowPlan)),
	)
	return markup(rows...)
}

// exerciseKeyboard навигация по упражнениям: назад, ответ, вперед
func exerciseKeyboard(planID int64, topic, num int, lesson *models.Lesson) tgbotapi.InlineKeyboardMarkup {
	total := len(lesson.Exercises)

	nav := row()
	if num > 0 {
		nav = append(nav, button("⬅️", exerciseData(topic, num-1)))
	}
	nav = append(nav, button("👁 Ответ", answerData(topic, num)))
	if num < total-1 {
		nav = append(nav, button("➡️", exerciseData(topic, num+1)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{nav}
	if num == total-1 {
		if len(lesson.Quiz) > 0 {
			rows = append(rows, row(button("❓ Перейти к квизу", quizData(topic, 0))))
		} else {
			rows = append(rows, row(button("✅ Тема пройдена", completeTopicData(planID, topic))))
		}
	}
	rows = append(rows, row(button("◀️ Вернуться в меню", cbBackToMenu)))
	return markup(rows...)
}

func quizKeyboard(topic, num int, q models.QuizItem) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(q.Options))
	for i := range q.Options {
		if i >= len(tutor.OptionLetters) {
			break
		}
		letter := tutor.OptionLetters[i]
		buttons = append(buttons, button(strings.ToUpper(letter), quizAnswerData(topic, num, letter)))
	}
	return markup(row(buttons...))
}

func quizResultKeyboard(planID int64, topic, num int, lesson *models.Lesson) tgbotapi.InlineKeyboardMarkup {
	if num+1 < len(lesson.Quiz) {
		return markup(
			row(button("➡️ Следующий вопрос", quizData(topic, num+1))),
			row(button("◀️ Вернуться в меню", cbBackToMenu)),
		)
	}
	return markup(
		row(button("✅ Тема пройдена", completeTopicData(planID, topic))),
		row(button("◀️ Вернуться в меню", cbBackToMenu)),
	)
}

func topicCompletedKeyboard(hasNext bool) tgbotapi.InlineKeyboardMarkup {
	if hasNext {
		return markup(
			row(button("▶️ Следующая тема", cbStartLearning)),
			row(button("📚 План обучения", cbShowPlan)),
			row(button("🏠 Главное меню", cbMainMenu)),
		)
	}
	return markup(
		row(button("📚 Новая программа обучения", cbGetProgram)),
		row(button("🔄 Пройти тест заново", cbStartTest)),
		row(button("🏠 Главное меню", cbMainMenu)),
	)
}

// levelKeyboard выбор уровня: A1 A2 / B1 B2 / C1
func levelKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(models.Levels); i += 2 {
		r := row(button(models.Levels[i].String(), levelData(string(models.Levels[i]))))
		if i+1 < len(models.Levels) {
			r = append(r, button(models.Levels[i+1].String(), levelData(string(models.Levels[i+1]))))
		}
		rows = append(rows, r)
	}
	rows = append(rows, row(button("◀️ Вернуться в меню", cbBackToMenu)))
	return markup(rows...)
}

func levelSelectedKeyboard() tgbotapi.InlineKeyboardMarkup {
	return markup(
		row(button("📚 Получить программу обучения", cbGetProgram)),
		row(button("🏠 Главное меню", cbMainMenu)),
	)
}

func profileKeyboard() tgbotapi.InlineKeyboardMarkup {
	return markup(
		row(button("📊 Показать прогресс", cbShowProgress)),
		row(button("🔄 Пройти тест заново", cbStartTest)),
		row(button("◀️ Вернуться в меню", cbBackToMenu)),
	)
}

// phoneKeyboard обычная клавиатура с кнопкой отправки контакта
func phoneKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Отправить номер телефона")),
	)
	kb.OneTimeKeyboard = true
	return kb
}
