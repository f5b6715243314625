package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Данные inline кнопок
const (
	cbMainMenu       = "main_menu"
	cbBackToMenu     = "back_to_menu"
	cbStartTest      = "start_test"
	cbRetryAnalysis  = "retry_analysis"
	cbGetProgram     = "get_learning_program"
	cbShowPlan       = "show_learning_plan"
	cbShowProgress   = "show_progress"
	cbStartLearning  = "start_learning"
	cbStartExercises = "start_exercises"
	cbSelectLevel    = "select_level"
	cbProfile        = "profile"

	prefixTestAnswer    = "test_"
	prefixCompleteTopic = "complete_topic_"
	prefixExercise      = "exercise_"
	prefixAnswer        = "answer_"
	prefixQuiz          = "quiz_"
	prefixQuizAnswer    = "quizans_"
	prefixLevel         = "level_"
)

// callback разобранные данные кнопки
type callback struct {
	action string // константа cb* или префикс без подчеркивания
	plan   int64
	topic  int
	num    int
	value  string // буква ответа или код уровня
}

func testAnswerData(letter string) string {
	return prefixTestAnswer + letter
}

// completeTopicData привязывает кнопку к плану, чтобы старые уроки не отмечали темы нового плана
func completeTopicData(planID int64, topic int) string {
	return fmt.Sprintf("%s%d_%d", prefixCompleteTopic, planID, topic)
}

func exerciseData(topic, num int) string {
	return fmt.Sprintf("%s%d_%d", prefixExercise, topic, num)
}

func answerData(topic, num int) string {
	return fmt.Sprintf("%s%d_%d", prefixAnswer, topic, num)
}

func quizData(topic, num int) string {
	return fmt.Sprintf("%s%d_%d", prefixQuiz, topic, num)
}

func quizAnswerData(topic, num int, letter string) string {
	return fmt.Sprintf("%s%d_%d_%s", prefixQuizAnswer, topic, num, letter)
}

func levelData(code string) string {
	return prefixLevel + code
}

// parseCallback разбирает данные кнопки. Неизвестные данные возвращают ошибку.
func parseCallback(data string) (callback, error) {
	switch data {
	case cbMainMenu, cbBackToMenu, cbStartTest, cbRetryAnalysis, cbGetProgram, cbShowPlan,
		cbShowProgress, cbStartLearning, cbStartExercises, cbSelectLevel, cbProfile:
		return callback{action: data}, nil
	}

	switch {
	case strings.HasPrefix(data, prefixQuizAnswer):
		parts := strings.Split(strings.TrimPrefix(data, prefixQuizAnswer), "_")
		if len(parts) != 3 || !isOptionLetter(parts[2]) {
			return callback{}, fmt.Errorf("некорректный ответ квиза: %q", data)
		}
		topic, num, err := parsePair(parts[0], parts[1])
		if err != nil {
			return callback{}, fmt.Errorf("некорректный ответ квиза %q: %w", data, err)
		}
		return callback{action: prefixQuizAnswer, topic: topic, num: num, value: parts[2]}, nil

	case strings.HasPrefix(data, prefixCompleteTopic):
		parts := strings.Split(strings.TrimPrefix(data, prefixCompleteTopic), "_")
		if len(parts) != 2 {
			return callback{}, fmt.Errorf("некорректная тема: %q", data)
		}
		plan, topic, err := parsePair(parts[0], parts[1])
		if err != nil {
			return callback{}, fmt.Errorf("некорректная тема %q: %w", data, err)
		}
		return callback{action: prefixCompleteTopic, plan: int64(plan), topic: topic}, nil

	case strings.HasPrefix(data, prefixExercise), strings.HasPrefix(data, prefixAnswer), strings.HasPrefix(data, prefixQuiz):
		prefix := prefixExercise
		if strings.HasPrefix(data, prefixAnswer) {
			prefix = prefixAnswer
		} else if strings.HasPrefix(data, prefixQuiz) {
			prefix = prefixQuiz
		}
		parts := strings.Split(strings.TrimPrefix(data, prefix), "_")
		if len(parts) != 2 {
			return callback{}, fmt.Errorf("некорректное упражнение: %q", data)
		}
		topic, num, err := parsePair(parts[0], parts[1])
		if err != nil {
			return callback{}, fmt.Errorf("некорректное упражнение %q: %w", data, err)
		}
		return callback{action: prefix, topic: topic, num: num}, nil

	case strings.HasPrefix(data, prefixTestAnswer):
		letter := strings.TrimPrefix(data, prefixTestAnswer)
		if !isOptionLetter(letter) {
			return callback{}, fmt.Errorf("некорректный ответ теста: %q", data)
		}
		return callback{action: prefixTestAnswer, value: letter}, nil

	case strings.HasPrefix(data, prefixLevel):
		return callback{action: prefixLevel, value: strings.TrimPrefix(data, prefixLevel)}, nil
	}

	return callback{}, fmt.Errorf("неизвестные данные кнопки: %q", data)
}

func isOptionLetter(s string) bool {
	return s == "a" || s == "b" || s == "c"
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("отрицательный индекс %d", n)
	}
	return n, nil
}

func parsePair(a, b string) (int, int, error) {
	first, err := parseIndex(a)
	if err != nil {
		return 0, 0, err
	}
	second, err := parseIndex(b)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}
