package service

import (
	"regexp"
	"strings"

	"quiz-forge/internal/domain"

	"github.com/tidwall/gjson"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("```[a-zA-Z]*")
)

// extractJSONObject strips reasoning blocks and code fences from a model response and returns
// the span from the first '{' to the last '}'.
func extractJSONObject(response string) (string, error) {
	cleaned := thinkBlock.ReplaceAllString(response, "")
	cleaned = codeFence.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return "", domain.NewMalformedOutputError("no JSON object found in model response", nil)
	}
	candidate := cleaned[start : end+1]
	if !gjson.Valid(candidate) {
		return "", domain.NewMalformedOutputError("model response is not valid JSON", nil)
	}
	return candidate, nil
}

// parseQuestionList returns the entries of the "questions" array of a model response. A bare
// question object is accepted as a one-element list.
func parseQuestionList(response string) ([]gjson.Result, error) {
	doc, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}
	parsed := gjson.Parse(doc)

	list := firstField(parsed, "questions", "domande", "quiz")
	switch {
	case list.IsArray():
		return list.Array(), nil
	case firstField(parsed, fieldQuestion...).Exists():
		return []gjson.Result{parsed}, nil
	}
	return nil, domain.NewMalformedOutputError("model response has no questions list", nil)
}

// Accepted spellings of each record field.
var (
	fieldQuestion    = []string{"question", "domanda", "question_text", "questionText"}
	fieldType        = []string{"type", "tipo", "question_type"}
	fieldOptions     = []string{"options", "opzioni", "choices"}
	fieldAnswer      = []string{"correct_answer", "answer", "corretta", "correctAnswer"}
	fieldExplanation = []string{"explanation", "spiegazione"}
	fieldSource      = []string{"source_file", "source", "sourceFile"}
	fieldTopicIndex  = []string{"topic_index", "topic"}
)

func firstField(obj gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if r := obj.Get(gjson.Escape(name)); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func stringField(obj gjson.Result, names ...string) string {
	r := firstField(obj, names...)
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return strings.TrimSpace(r.String())
	}
	return ""
}

// flattenOptions turns the options value into plain strings. Object entries contribute
// their "text" or "value" field, else their first value.
func flattenOptions(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, entry gjson.Result) bool {
		var text string
		switch {
		case entry.IsObject():
			if v := firstField(entry, "text", "value"); v.Exists() {
				text = v.String()
			} else {
				entry.ForEach(func(_, v gjson.Result) bool {
					text = v.String()
					return false
				})
			}
		case entry.Type == gjson.Null:
		default:
			text = entry.String()
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
		return true
	})
	return out
}
