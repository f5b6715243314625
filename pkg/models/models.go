package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level уровень владения английским по шкале CEFR
type Level string

// Constants для уровней пользователей
const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
)

// Levels все поддерживаемые уровни по возрастанию
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1}

var levelTitles = map[Level]string{
	LevelA1: "Начальный",
	LevelA2: "Элементарный",
	LevelB1: "Средний",
	LevelB2: "Выше среднего",
	LevelC1: "Продвинутый",
}

// ParseLevel разбирает код уровня без учета регистра
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	return l, l.IsValid()
}

// IsValid проверяет корректность уровня
func (l Level) IsValid() bool {
	_, ok := levelTitles[l]
	return ok
}

// Title возвращает русское название уровня
func (l Level) Title() string {
	if t, ok := levelTitles[l]; ok {
		return t
	}
	return "не определен"
}

// Next возвращает следующий уровень. Для C1 возвращается C1.
func (l Level) Next() Level {
	for i, lv := range Levels {
		if lv == l && i+1 < len(Levels) {
			return Levels[i+1]
		}
	}
	if l.IsValid() {
		return l
	}
	return LevelA2
}

// String возвращает уровень вместе с названием, например "B1 (Средний)"
func (l Level) String() string {
	if !l.IsValid() {
		return "не определен"
	}
	return fmt.Sprintf("%s (%s)", string(l), l.Title())
}

// User представляет пользователя в системе
type User struct {
	TelegramID       int64         `json:"telegram_id" db:"telegram_id"`
	Username         string        `json:"username" db:"username"`
	FirstName        string        `json:"first_name" db:"first_name"`
	LastName         string        `json:"last_name" db:"last_name"`
	Name             string        `json:"name" db:"display_name"` // имя, которое пользователь указал при регистрации
	Phone            string        `json:"phone" db:"phone"`
	Level            Level         `json:"level" db:"level"` // пустой, пока тест не пройден
	TestScore        int           `json:"test_score" db:"test_score"`
	HasCompletedTest bool          `json:"has_completed_test" db:"has_completed_test"`
	LearningPlan     *LearningPlan `json:"learning_plan,omitempty" db:"learning_plan"`
	LastActivity     time.Time     `json:"last_activity" db:"last_activity"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// IsRegistered проверяет, что пользователь указал имя и телефон
func (u *User) IsRegistered() bool {
	return u != nil && u.Name != "" && u.Phone != ""
}

// Topic тема учебного плана
type Topic struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Duration    string   `json:"duration"`
	Objectives  FlexText `json:"objectives"`
	Completed   bool     `json:"completed"`
}

// LearningPlan представляет учебный план пользователя
type LearningPlan struct {
	ID           int64     `json:"id,omitempty" db:"id"`
	UserID       int64     `json:"user_id,omitempty" db:"user_id"`
	CurrentLevel Level     `json:"current_level" db:"current_level"`
	TargetLevel  Level     `json:"target_level" db:"target_level"`
	Topics       []Topic   `json:"topics" db:"topics"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
}

// Progress возвращает количество пройденных тем и общее число тем
func (p *LearningPlan) Progress() (done, total int) {
	if p == nil {
		return 0, 0
	}
	for _, t := range p.Topics {
		if t.Completed {
			done++
		}
	}
	return done, len(p.Topics)
}

// FirstIncomplete возвращает индекс первой непройденной темы
func (p *LearningPlan) FirstIncomplete() (int, bool) {
	if p == nil {
		return 0, false
	}
	for i, t := range p.Topics {
		if !t.Completed {
			return i, true
		}
	}
	return 0, false
}

// TestQuestion вопрос теста уровня
type TestQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// TestAnswer ответ пользователя на вопрос теста
type TestAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// TestAnalysis результат анализа теста
type TestAnalysis struct {
	CorrectAnswers  int      `json:"correct_answers"`
	Total           int      `json:"total"`
	Level           Level    `json:"level"`
	Explanation     string   `json:"explanation"`
	Strengths       FlexText `json:"strengths"`
	Weaknesses      FlexText `json:"weaknesses"`
	Recommendations FlexText `json:"recommendations"`
}

// TestResult запись истории прохождения теста
type TestResult struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Score       int       `json:"score" db:"score"`
	Total       int       `json:"total" db:"total"`
	LevelBefore Level     `json:"level_before" db:"level_before"`
	LevelAfter  Level     `json:"level_after" db:"level_after"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Exercise упражнение урока с открытым ответом
type Exercise struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation"`
}

// QuizItem вопрос квиза с тремя вариантами
type QuizItem struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// CorrectIndex возвращает индекс правильного варианта или -1.
// Правильный ответ может быть задан буквой (a, "B)") или текстом варианта.
func (q QuizItem) CorrectIndex() int {
	answer := strings.TrimSpace(q.CorrectAnswer)
	for i, opt := range q.Options {
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			return i
		}
	}

	letter := strings.ToLower(strings.TrimRight(answer, ").: "))
	if len(letter) == 1 && letter[0] >= 'a' && int(letter[0]-'a') < len(q.Options) {
		return int(letter[0] - 'a')
	}
	return -1
}

// Lesson учебный материал по теме
type Lesson struct {
	Theory    string     `json:"theory"`
	Examples  FlexText   `json:"examples"`
	Exercises []Exercise `json:"exercises"`
	Quiz      []QuizItem `json:"quiz"`
}

// Profile сводка для экрана профиля
type Profile struct {
	User    *User
	Plan    *LearningPlan
	Results []TestResult
}

// FlexText список строк, который в JSON может прийти строкой или массивом
type FlexText []string

// UnmarshalJSON принимает строку, массив строк или массив произвольных значений
func (f *FlexText) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*f = nil
		} else {
			*f = FlexText{single}
		}
		return nil
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("ожидалась строка или массив: %w", err)
	}

	out := make(FlexText, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		case nil:
		default:
			b, _ := json.Marshal(v)
			out = append(out, string(b))
		}
	}
	*f = out
	return nil
}

// Join объединяет элементы через разделитель
func (f FlexText) Join(sep string) string {
	return strings.Join(f, sep)
}
