package service

import (
	"regexp"
	"strings"

	"quiz-forge/internal/domain"

	"github.com/tidwall/gjson"
)

var optionLabel = regexp.MustCompile(`^\(?([A-Za-z])[).:\]]\s*`)

// normalizeCandidate converts one raw model record into a QuestionRecord for mode, or reports
// false when the record cannot be used. The source file is left as stated by the model and
// resolved later against the batch context.
func normalizeCandidate(raw gjson.Result, mode domain.QuestionMode, maxOptions int) (domain.QuestionRecord, bool) {
	if !raw.IsObject() {
		return domain.QuestionRecord{}, false
	}
	rec := domain.QuestionRecord{
		Question:      stringField(raw, fieldQuestion...),
		CorrectAnswer: stringField(raw, fieldAnswer...),
		Explanation:   stringField(raw, fieldExplanation...),
		SourceFile:    stringField(raw, fieldSource...),
	}
	if rec.Question == "" {
		return domain.QuestionRecord{}, false
	}

	options := flattenOptions(firstField(raw, fieldOptions...))
	rec.Type = classify(stringField(raw, fieldType...), len(options) > 0)

	switch {
	case rec.Type == domain.TypeMultipleChoice && len(options) == 0:
		if mode == domain.ModeMultiple {
			return domain.QuestionRecord{}, false
		}
		rec.Type = domain.TypeOpenEnded
	case rec.Type == domain.TypeOpenEnded && len(options) > 1 && mode == domain.ModeMultiple:
		rec.Type = domain.TypeMultipleChoice
	}

	if mode == domain.ModeOpen && rec.Type != domain.TypeOpenEnded {
		return domain.QuestionRecord{}, false
	}
	if mode == domain.ModeMultiple && rec.Type != domain.TypeMultipleChoice {
		return domain.QuestionRecord{}, false
	}

	if rec.Type == domain.TypeOpenEnded {
		rec.Options = nil
		return rec, rec.CorrectAnswer != ""
	}

	if len(options) > maxOptions {
		options = options[:maxOptions]
	}
	answer, ok := resolveAnswer(rec.CorrectAnswer, options)
	if !ok {
		return domain.QuestionRecord{}, false
	}
	rec.Options = options
	rec.CorrectAnswer = answer
	return rec, true
}

// classify maps the model's type label onto a QuestionType. Unknown labels are decided by
// whether options were given.
func classify(label string, hasOptions bool) domain.QuestionType {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "multi"), strings.Contains(l, "choice"), l == "mc", l == "mcq":
		return domain.TypeMultipleChoice
	case strings.Contains(l, "open"), strings.Contains(l, "aperta"), strings.Contains(l, "free"):
		return domain.TypeOpenEnded
	}
	if hasOptions {
		return domain.TypeMultipleChoice
	}
	return domain.TypeOpenEnded
}

// resolveAnswer returns the option text that answer designates: an exact match, a
// case-insensitive match, a match ignoring "A)" style labels, or a bare option letter.
func resolveAnswer(answer string, options []string) (string, bool) {
	if answer == "" || len(options) == 0 {
		return "", false
	}
	for _, opt := range options {
		if opt == answer {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.EqualFold(opt, answer) {
			return opt, true
		}
	}

	bare := stripLabel(answer)
	for _, opt := range options {
		if bare != "" && strings.EqualFold(stripLabel(opt), bare) {
			return opt, true
		}
	}

	letter := strings.Trim(answer, " ().:]")
	if len(letter) == 1 {
		l := strings.ToUpper(letter)[0]
		for _, opt := range options {
			if m := optionLabel.FindStringSubmatch(opt); m != nil && strings.ToUpper(m[1])[0] == l {
				return opt, true
			}
		}
		if idx := int(l) - 'A'; idx >= 0 && idx < len(options) {
			return options[idx], true
		}
	}
	return "", false
}

func stripLabel(s string) string {
	return strings.TrimSpace(optionLabel.ReplaceAllString(s, ""))
}

// resolveSource attributes rec to a file of the context it was generated from. A single
// source file always wins; otherwise a stated file that appears in the context is kept and
// anything else falls back to "Multiple Sources", or "Unknown" without context.
func resolveSource(stated string, sources []string) string {
	unique := uniqueSources(sources)
	switch len(unique) {
	case 0:
		return domain.SourceUnknown
	case 1:
		return unique[0]
	}
	stated = strings.TrimSpace(stated)
	for _, s := range unique {
		if strings.EqualFold(s, stated) {
			return s
		}
	}
	return domain.SourceMultiple
}

func uniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	var out []string
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, domain.SourceUnknown) {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
