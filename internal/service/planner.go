package service

import "quiz-forge/internal/domain"

const (
	// questionsPerBatch is the upper bound of questions asked for in one window batch.
	questionsPerBatch = 5
	// topicsPerBatch is the number of topics consumed by one topic batch.
	topicsPerBatch = 10
	// maxConsecutiveFailures stops the loop after this many batches in a row produce nothing new.
	maxConsecutiveFailures = 5
	// historyWindow bounds the accepted texts echoed back into prompts.
	historyWindow = 10
	// openEvery makes one question in this many open-ended in mixed mode.
	openEvery = 5
)

// PlanCounts splits n questions into open-ended and multiple-choice counts for mode.
// An unknown mode plans like mixed.
func PlanCounts(n int, mode domain.QuestionMode) (openCount, mcCount int) {
	if n <= 0 {
		return 0, 0
	}
	switch mode {
	case domain.ModeOpen:
		return n, 0
	case domain.ModeMultiple:
		return 0, n
	}
	openCount = n / openEvery
	return openCount, n - openCount
}

// PlanBatchOpen returns how many of a batch of size questions are open-ended: at most 1 for
// batches under 3 questions, at most 2 otherwise, never more than remainingOpen.
func PlanBatchOpen(size, remainingOpen int) int {
	if size <= 0 || remainingOpen <= 0 {
		return 0
	}
	limit := 2
	if size < 3 {
		limit = 1
	}
	return min(limit, remainingOpen, size)
}

// PlanBatch returns the open and multiple-choice counts of one window batch. The open share
// follows PlanBatchOpen; when the multiple-choice quota is exhausted the rest of the batch is
// open-ended.
func PlanBatch(size, remainingOpen, remainingMC int) (openCount, mcCount int) {
	openCount = PlanBatchOpen(size, remainingOpen)
	mcCount = min(size-openCount, max(remainingMC, 0))
	if openCount+mcCount < size {
		openCount = min(size-mcCount, remainingOpen)
	}
	return openCount, mcCount
}

// AssignTypes assigns a type to each of size consecutive positions starting at startPos. In
// mixed mode every fifth position in the whole job sequence is open-ended while open quota
// remains.
func AssignTypes(mode domain.QuestionMode, startPos, size, remainingOpen int) []domain.QuestionType {
	types := make([]domain.QuestionType, size)
	for i := range types {
		switch {
		case mode == domain.ModeOpen:
			types[i] = domain.TypeOpenEnded
		case mode == domain.ModeMultiple:
			types[i] = domain.TypeMultipleChoice
		case (startPos+i)%openEvery == openEvery-1 && remainingOpen > 0:
			types[i] = domain.TypeOpenEnded
			remainingOpen--
		default:
			types[i] = domain.TypeMultipleChoice
		}
	}
	return types
}

// AssignTopics takes size topics from pool starting at cursor, wrapping around.
func AssignTopics(pool []string, cursor, size int) []string {
	if len(pool) == 0 || size <= 0 {
		return nil
	}
	out := make([]string, size)
	for i := range out {
		out[i] = pool[(cursor+i)%len(pool)]
	}
	return out
}

// OpenQuota returns the open-ended questions still owed once remaining questions are left and
// open of them were planned as open-ended. Single-type modes are pinned to their type.
func OpenQuota(mode domain.QuestionMode, remaining, open int) int {
	switch mode {
	case domain.ModeOpen:
		return max(remaining, 0)
	case domain.ModeMultiple:
		return 0
	}
	return min(max(open, 0), max(remaining, 0))
}

func countOpenRecords(records []domain.QuestionRecord) int {
	n := 0
	for _, r := range records {
		if r.Type == domain.TypeOpenEnded {
			n++
		}
	}
	return n
}

func countOpen(types []domain.QuestionType) int {
	n := 0
	for _, t := range types {
		if t == domain.TypeOpenEnded {
			n++
		}
	}
	return n
}
