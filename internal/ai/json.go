package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRegex = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ExtractJSON вырезает JSON из ответа модели: снимает markdown-ограждение
// ```json ... ``` и отбрасывает текст до первой и после последней скобки.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}

	end := strings.LastIndexByte(s, closing)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecodeJSON извлекает JSON из ответа модели и декодирует его в v
func DecodeJSON(text string, v any) error {
	raw := ExtractJSON(text)
	if raw == "" {
		return fmt.Errorf("пустой ответ")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("ошибка парсинга JSON ответа: %w", err)
	}
	return nil
}
