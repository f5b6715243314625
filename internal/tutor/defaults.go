package tutor

import "github.com/Vada521/englishai/pkg/models"

var defaultQuestions = []models.TestQuestion{
	{Question: "Choose the correct form of 'to be': I ___ a student.", Options: []string{"am", "is", "are"}},
	{Question: "Select the correct past form of 'go': Yesterday I ___ to the park.", Options: []string{"went", "gone", "going"}},
	{Question: "Which is correct?", Options: []string{"I can speak English", "I can to speak English", "I can speaking English"}},
	{Question: "Choose the correct article: She is ___ engineer.", Options: []string{"a", "an", "the"}},
	{Question: "Select the correct preposition: The meeting is ___ Monday.", Options: []string{"in", "on", "at"}},
	{Question: "Which is correct?", Options: []string{"He doesn't know", "He don't know", "He not know"}},
	{Question: "Choose the correct form: Look! I ___ a book now.", Options: []string{"am reading", "reading", "read"}},
	{Question: "Select the correct word: How ___ apples do you have?", Options: []string{"much", "many", "lot"}},
	{Question: "Which is correct?", Options: []string{"If I were you, I would go", "If I was you, I would go", "If I be you, I would go"}},
	{Question: "Choose the correct form: ___ here since 2010.", Options: []string{"I have been", "I has been", "I had been"}},
}

// DefaultQuestions возвращает встроенный набор вопросов теста
func DefaultQuestions() []models.TestQuestion {
	out := make([]models.TestQuestion, len(defaultQuestions))
	for i, q := range defaultQuestions {
		out[i] = models.TestQuestion{
			Question: q.Question,
			Options:  append([]string(nil), q.Options...),
		}
	}
	return out
}

// DefaultPlan возвращает базовый учебный план, когда ассистент не справился
func DefaultPlan(level models.Level) *models.LearningPlan {
	if !level.IsValid() {
		level = models.LevelA1
	}

	return &models.LearningPlan{
		CurrentLevel: level,
		TargetLevel:  level.Next(),
		Topics: []models.Topic{
			{
				Name:        "Алфавит и произношение",
				Description: "Звуки английского языка, правила чтения и транскрипция",
				Duration:    "1 неделя",
				Objectives:  models.FlexText{"Читать слова по транскрипции", "Различать долгие и краткие гласные"},
			},
			{
				Name:        "Основы лексики и фразы для знакомства",
				Description: "Приветствия, рассказ о себе, базовые вопросы",
				Duration:    "1 неделя",
				Objectives:  models.FlexText{"Представиться и рассказать о себе", "Задать простые вопросы собеседнику"},
			},
			{
				Name:        "Простое настоящее время (Present Simple)",
				Description: "Образование и употребление Present Simple",
				Duration:    "2 недели",
				Objectives:  models.FlexText{"Строить утвердительные, отрицательные и вопросительные предложения", "Описывать привычки и распорядок дня"},
			},
			{
				Name:        "Числа, цвета, время",
				Description: "Числительные, названия цветов, как сказать который час",
				Duration:    "1 неделя",
				Objectives:  models.FlexText{"Называть время и даты", "Использовать числа в речи"},
			},
			{
				Name:        "Еда и напитки",
				Description: "Лексика по теме еды, заказ в кафе, much/many",
				Duration:    "1 неделя",
				Objectives:  models.FlexText{"Сделать заказ в кафе", "Различать исчисляемые и неисчисляемые существительные"},
			},
			{
				Name:        "Повседневные диалоги и фразы",
				Description: "Типовые ситуации: магазин, дорога, транспорт",
				Duration:    "2 недели",
				Objectives:  models.FlexText{"Поддержать короткий диалог", "Спросить дорогу и понять ответ"},
			},
		},
	}
}

// LevelFromCorrect определяет уровень по числу правильных ответов из 10
func LevelFromCorrect(correct int) models.Level {
	switch {
	case correct >= 8:
		return models.LevelB2
	case correct >= 6:
		return models.LevelB1
	case correct >= 4:
		return models.LevelA2
	default:
		return models.LevelA1
	}
}
