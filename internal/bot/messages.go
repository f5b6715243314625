package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/Vada521/englishai/pkg/models"
)

// Messages тексты сообщений бота
type Messages struct{}

// NewMessages создает набор текстов
func NewMessages() *Messages {
	return &Messages{}
}

func (m *Messages) Welcome() string {
	return "👋 Добро пожаловать в бот для изучения английского языка!\n\n" +
		"Для начала давайте познакомимся. Как я могу к вам обращаться?"
}

func (m *Messages) InvalidName() string {
	return "Пожалуйста, напишите ваше имя обычным текстом (до 64 символов)."
}

func (m *Messages) AskPhone(name string) string {
	return fmt.Sprintf("Приятно познакомиться, %s! 😊\n\n"+
		"Теперь отправьте ваш номер телефона кнопкой ниже или напишите его сообщением.", html.EscapeString(name))
}

func (m *Messages) InvalidPhone() string {
	return "Не получилось распознать номер. Отправьте его кнопкой «📱 Отправить номер телефона» " +
		"или напишите в формате +79991234567."
}

func (m *Messages) ForeignContact() string {
	return "Пожалуйста, отправьте свой номер телефона, а не контакт другого человека."
}

func (m *Messages) Registered() string {
	return "Спасибо за регистрацию! ✅\n\n" +
		"Теперь давайте определим ваш уровень английского языка. Для этого пройдите небольшой тест."
}

// Menu текст главного меню
func (m *Messages) Menu(u *models.User) string {
	name := u.Name
	if name == "" {
		name = u.FirstName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏠 <b>Главное меню</b>\n\n👤 %s\n", html.EscapeString(name))
	if u.Level.IsValid() {
		fmt.Fprintf(&b, "🎯 Уровень: <b>%s</b>", html.EscapeString(u.Level.String()))
		if u.HasCompletedTest {
			fmt.Fprintf(&b, "\n📊 Последний тест: %d/10", u.TestScore)
		}
	} else {
		b.WriteString("🎯 Уровень еще не определен. Пройдите тест или выберите уровень самостоятельно.")
	}
	return b.String()
}

func (m *Messages) Help() string {
	return "📖 <b>Как пользоваться ботом</b>\n\n" +
		"1. Пройдите тест из 10 вопросов, чтобы определить уровень.\n" +
		"2. Получите персональную программу обучения.\n" +
		"3. Изучайте темы по порядку, выполняйте упражнения и отмечайте пройденное.\n\n" +
		"<b>Команды:</b>\n" +
		"/start - начать или вернуться в меню\n" +
		"/menu - главное меню\n" +
		"/profile - профиль и история тестов\n" +
		"/cancel - прервать текущее действие\n" +
		"/help - эта справка"
}

func (m *Messages) UnknownCommand() string {
	return "Неизвестная команда. Используйте /help, чтобы увидеть список команд."
}

func (m *Messages) NeedRegistration() string {
	return "Сначала нужно зарегистрироваться. Нажмите /start."
}

func (m *Messages) UseButtons() string {
	return "Пожалуйста, используйте кнопки меню 👇"
}

func (m *Messages) AnswerWithButtons() string {
	return "Выберите вариант ответа кнопкой под вопросом."
}

func (m *Messages) Busy() string {
	return "⏳ Подождите, я еще обрабатываю предыдущий запрос."
}

func (m *Messages) RateLimited() string {
	return "⚠️ Слишком много запросов. Подождите минуту."
}

// Error общий текст ошибки без подробностей
func (m *Messages) Error() string {
	return "😔 Извините, произошла ошибка. Попробуйте еще раз или вернитесь в меню."
}

func (m *Messages) Stale() string {
	return "Эта кнопка уже неактуальна. Вернитесь в меню и начните заново."
}

func (m *Messages) PreparingTest() string {
	return "⏳ Готовлю вопросы теста, это может занять немного времени..."
}

func (m *Messages) Analyzing() string {
	return "⏳ Анализирую ваши ответы..."
}

func (m *Messages) PreparingPlan() string {
	return "⏳ Составляю программу обучения..."
}

func (m *Messages) PreparingLesson(topic string) string {
	return fmt.Sprintf("⏳ Готовлю урок по теме «%s»...", html.EscapeString(topic))
}

func (m *Messages) NoLevel() string {
	return "Чтобы составить программу, нужно знать ваш уровень. Пройдите тест или выберите уровень самостоятельно."
}

func (m *Messages) NoPlan() string {
	return "📚 У вас пока нет программы обучения."
}

func (m *Messages) AllTopicsCompleted() string {
	return "🎉 Поздравляем! Все темы программы пройдены.\n\n" +
		"Можно составить новую программу или пройти тест заново, чтобы проверить прогресс."
}

func (m *Messages) TopicCompleted(topic string, done, total int) string {
	return fmt.Sprintf("✅ Тема «%s» пройдена!\n\nПрогресс: %d из %d тем.", html.EscapeString(topic), done, total)
}

func (m *Messages) NoExercises() string {
	return "В этом уроке нет упражнений. Отметьте тему пройденной, когда будете готовы."
}

func (m *Messages) SelectLevel() string {
	return "🎚 Выберите ваш уровень английского языка:"
}

func (m *Messages) LevelSelected(level models.Level) string {
	return fmt.Sprintf("✅ Уровень установлен: <b>%s</b>\n\nТеперь можно получить программу обучения.",
		html.EscapeString(level.String()))
}

// Progress краткая сводка прогресса по плану
func (m *Messages) Progress(plan *models.LearningPlan) string {
	done, total := plan.Progress()
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Прогресс обучения</b>\n\n%s → %s\n", html.EscapeString(plan.CurrentLevel.String()),
		html.EscapeString(plan.TargetLevel.String()))
	fmt.Fprintf(&b, "Пройдено тем: <b>%d из %d</b> (%d%%)\n%s", done, total, percent, progressBar(done, total))

	if i, ok := plan.FirstIncomplete(); ok {
		fmt.Fprintf(&b, "\n\n▶️ Следующая тема: <b>%s</b>", html.EscapeString(plan.Topics[i].Name))
	}
	return b.String()
}

func progressBar(done, total int) string {
	const width = 10
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := done * width / total
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

// Profile экран профиля с последними результатами тестов
func (m *Messages) Profile(p *models.Profile) string {
	u := p.User

	var b strings.Builder
	b.WriteString("👤 <b>Профиль</b>\n\n")
	fmt.Fprintf(&b, "📝 Имя: %s\n", html.EscapeString(orDefault(u.Name, "не указано")))
	fmt.Fprintf(&b, "📱 Телефон: %s\n", html.EscapeString(orDefault(u.Phone, "не указан")))
	fmt.Fprintf(&b, "🎯 Уровень: %s\n", html.EscapeString(u.Level.String()))
	if u.HasCompletedTest {
		fmt.Fprintf(&b, "📊 Результат теста: %d/10\n", u.TestScore)
	} else {
		b.WriteString("📊 Тест еще не пройден\n")
	}

	if p.Plan != nil {
		done, total := p.Plan.Progress()
		fmt.Fprintf(&b, "📚 Программа: %d из %d тем\n", done, total)
	}
	fmt.Fprintf(&b, "📅 С нами с %s\n", u.CreatedAt.Format("02.01.2006"))

	if len(p.Results) > 0 {
		b.WriteString("\n<b>История тестов:</b>")
		for _, r := range p.Results {
			before := "-"
			if r.LevelBefore.IsValid() {
				before = string(r.LevelBefore)
			}
			fmt.Fprintf(&b, "\n• %s: %d/%d, %s → %s", r.CreatedAt.Format("02.01.2006"), r.Score, r.Total,
				before, string(r.LevelAfter))
		}
	}
	return b.String()
}

func (m *Messages) DataCleared() string {
	return "🗑 Ваши данные удалены. Чтобы начать заново, нажмите /start."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
