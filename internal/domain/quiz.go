package domain

// QuestionMode selects which question types a quiz request may contain.
type QuestionMode string

const (
	ModeOpen     QuestionMode = "open"
	ModeMultiple QuestionMode = "multiple"
	ModeMixed    QuestionMode = "mixed"
)

// Valid reports whether m is one of the enumerated modes.
func (m QuestionMode) Valid() bool {
	switch m {
	case ModeOpen, ModeMultiple, ModeMixed:
		return true
	}
	return false
}

// QuestionType is the normalized type of a generated question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeOpenEnded      QuestionType = "open_ended"
)

// Generation strategies understood by the batch builder.
const (
	StrategyWindow = "window"
	StrategyTopic  = "topic"
)

// Source labels used when a question cannot be attributed to a single file.
const (
	SourceMultiple    = "Multiple Sources"
	SourceUnknown     = "Unknown"
	SourceRegenerated = "AI Regenerated"
)

// QuizRequest is the immutable input of a generation job.
type QuizRequest struct {
	NumQuestions int          `json:"num_questions"`
	CustomPrompt string       `json:"custom_prompt"`
	Language     string       `json:"language"`
	QuestionType QuestionMode `json:"question_type"`
	MaxOptions   int          `json:"max_options"`
	Model        string       `json:"model,omitempty"`
	Strategy     string       `json:"strategy,omitempty"`
}

// ContextFragment is a retrieved span of source text.
type ContextFragment struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}

// QuestionRecord is the normalized output unit of the pipeline.
// Multiple-choice records carry at most MaxOptions options and their CorrectAnswer equals one
// of them; open-ended records carry none.
type QuestionRecord struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	SourceFile    string       `json:"source_file"`
}

// GradeResult is the evaluation of a free-text answer.
type GradeResult struct {
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	IdealAnswer string `json:"ideal_answer"`
}
