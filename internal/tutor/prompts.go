package tutor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Vada521/englishai/pkg/models"
)

func questionsPrompt() string {
	return fmt.Sprintf(`Составь тест из %d вопросов для определения уровня английского языка (от A1 до C1).
Вопросы должны постепенно усложняться и проверять грамматику, лексику и времена.
У каждого вопроса должно быть ровно %d варианта ответа.
Верни только JSON-массив без пояснений в формате:
[{"question": "текст вопроса", "options": ["вариант 1", "вариант 2", "вариант 3"]}]`, QuestionsCount, OptionsCount)
}

func analysisPrompt(answers []models.TestAnswer) string {
	payload, _ := json.MarshalIndent(answers, "", "  ")

	return fmt.Sprintf(`Проанализируй ответы ученика на тест по английскому языку.

Ответы ученика:
%s

Посчитай количество правильных ответов и определи уровень владения языком (A1, A2, B1, B2 или C1).
Ответь только JSON-объектом в формате:
{
  "correct_answers": число правильных ответов,
  "level": "A1|A2|B1|B2|C1",
  "explanation": "объяснение уровня на русском",
  "strengths": ["сильная сторона"],
  "weaknesses": ["слабая сторона"],
  "recommendations": ["рекомендация"]
}`, string(payload))
}

func planPrompt(level models.Level, strengths, weaknesses []string) string {
	return fmt.Sprintf(`Составь персональный учебный план по английскому языку.

Текущий уровень ученика: %s
Сильные стороны: %s
Слабые стороны: %s

План должен вести к следующему уровню и содержать 5-8 тем, с упором на слабые стороны.
Названия и описания тем пиши на русском.
Ответь только JSON-объектом в формате:
{
  "current_level": "%s",
  "target_level": "следующий уровень",
  "topics": [
    {
      "name": "название темы",
      "description": "краткое описание",
      "duration": "примерная длительность, например 1 неделя",
      "objectives": ["цель 1", "цель 2"],
      "completed": false
    }
  ]
}`, level, joinOrDash(strengths), joinOrDash(weaknesses), level)
}

func lessonPrompt(level models.Level, topic models.Topic) string {
	return fmt.Sprintf(`Подготовь урок английского языка для ученика уровня %s.

Тема: %s
Описание: %s
Цели: %s

Теорию объясняй на русском, примеры давай на английском с переводом.
Ответь только JSON-объектом в формате:
{
  "theory": "теоретическая часть",
  "examples": ["пример 1", "пример 2"],
  "exercises": [
    {"question": "задание", "correct_answer": "правильный ответ", "explanation": "пояснение"}
  ],
  "quiz": [
    {"question": "вопрос", "options": ["вариант 1", "вариант 2", "вариант 3"], "correct_answer": "правильный вариант", "explanation": "пояснение"}
  ]
}
Дай 3-5 упражнений и 3 вопроса квиза, у каждого вопроса квиза ровно %d варианта.`,
		level, topic.Name, topic.Description, joinOrDash(topic.Objectives), OptionsCount)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, "; ")
}
