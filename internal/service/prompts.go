package service

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

var windowPrompt = prompts.NewPromptTemplate(`You are an expert technical examiner.

USER INSTRUCTIONS:
- OUTPUT LANGUAGE: {{.lang}} (translate all content to {{.lang}})
- TOPIC/STYLE: {{.custom_prompt}}

SOURCE CONTEXT:
{{.context}}

TASK:
Generate a quiz based ONLY on the context above.
- {{.num_mc}} multiple-choice questions (max {{.max_options}} options each, the correct answer among them).
- {{.num_open}} open-ended questions.

RULES:
1. If the multiple-choice count is 0, do not generate multiple-choice questions.
2. If the open-ended count is 0, do not generate open-ended questions.
3. Ignore administrative information (dates, emails, author names).
4. Take "source_file" from the [File: ...] header of the text the question is based on.
5. For multiple-choice questions "correct_answer" must repeat one option exactly.

RESPOND ONLY WITH JSON IN THIS FORMAT:
{
  "questions": [
    {"question": "Question text...", "type": "multiple_choice", "options": ["A) Correct", "B) Wrong"], "correct_answer": "A) Correct", "explanation": "Why...", "source_file": "exact_filename.pdf"},
    {"question": "Open question text...", "type": "open_ended", "correct_answer": "Ideal answer...", "source_file": "exact_filename.pdf"}
  ]
}
Avoid repeating these questions: {{.history}}`,
	[]string{"lang", "custom_prompt", "context", "num_mc", "num_open", "max_options", "history"})

var topicsPrompt = prompts.NewPromptTemplate(`You are building a study plan from the material below.

MATERIAL (excerpts):
{{.context}}

List {{.pool_size}} distinct, specific concepts from this material that would make good quiz questions.
Prefer precise technical concepts, definitions, mechanisms and named results.
Do NOT list generic chapter titles such as "Introduction" or "Summary".
Write the concepts in {{.lang}}.
Respond ONLY with a flat comma-separated list, no numbering, no commentary.`,
	[]string{"context", "pool_size", "lang"})

var topicDraftPrompt = prompts.NewPromptTemplate(`You are an expert examiner writing exam questions.

OUTPUT LANGUAGE: {{.lang}}
STYLE: {{.custom_prompt}}

For each numbered topic write exactly one question of the requested kind, using ONLY the
context given for that topic.
{{.assignments}}

CONTEXT BY TOPIC:
{{.context}}

For multiple-choice questions give at most {{.max_options}} options; the correct answer must be one of them.
For open-ended questions give a short ideal answer.
Do not repeat these questions: {{.history}}`,
	[]string{"lang", "custom_prompt", "assignments", "context", "max_options", "history"})

var topicRefinePrompt = prompts.NewPromptTemplate(`Convert the draft below into strict JSON. Do not add, remove or reorder questions.

DRAFT:
{{.draft}}

Expected kinds, in order:
{{.assignments}}

Rules:
- "type" is "multiple_choice" or "open_ended".
- multiple_choice: "options" has at most {{.max_options}} strings and "correct_answer" repeats one of them exactly.
- open_ended: no "options"; "correct_answer" is the ideal answer.
- "topic_index" is the number of the topic the question belongs to.
- Keep the text in {{.lang}}.

RESPOND ONLY WITH JSON:
{"questions": [{"topic_index": 1, "question": "...", "type": "multiple_choice", "options": ["..."], "correct_answer": "...", "explanation": "..."}]}`,
	[]string{"draft", "assignments", "max_options", "lang"})

var gradePrompt = prompts.NewPromptTemplate(`You are a strict but fair university professor grading an exam answer.

QUESTION: {{.question}}
REFERENCE ANSWER: {{.reference}}
STUDENT ANSWER: {{.answer}}
OUTPUT LANGUAGE: {{.lang}}

Score the student answer from 0 to 100 against the reference, explain the score briefly and
give the ideal answer.

RESPOND ONLY WITH JSON:
{"score": 85, "feedback": "The concept is correct but...", "ideal_answer": "The formal definition is..."}`,
	[]string{"question", "reference", "answer", "lang"})

var regeneratePrompt = prompts.NewPromptTemplate(`You are an expert examiner. Rewrite the question following the instruction.

ORIGINAL QUESTION: {{.question}}
INSTRUCTION: {{.instruction}}
OUTPUT LANGUAGE: {{.lang}}

RESPOND ONLY WITH JSON:
{"question": "New question text...", "type": "multiple_choice", "options": ["A) ...", "B) ..."], "correct_answer": "A) ...", "explanation": "..."}
Use "type": "open_ended" and omit "options" for an open question.`,
	[]string{"question", "instruction", "lang"})

var chatPrompt = prompts.NewPromptTemplate(`You are a helpful study assistant. Answer the question using only the context below.
If the context does not contain the answer, say so.

CONTEXT:
{{.context}}

QUESTION: {{.question}}
Answer in {{.lang}}.`,
	[]string{"context", "question", "lang"})

func renderPrompt(tmpl prompts.PromptTemplate, values map[string]any) (string, error) {
	prompt, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return prompt, nil
}
