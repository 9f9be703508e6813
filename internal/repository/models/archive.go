package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StringSlice stores a string list as a JSON array in a CLOB column.
type StringSlice []string

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	jsonData, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(jsonData), nil
}

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	var bytesToParse []byte
	switch v := value.(type) {
	case []byte:
		bytesToParse = v
	case string:
		bytesToParse = []byte(v)
	default:
		return errors.New("StringSlice Scan: unsupported type " + fmt.Sprintf("%T", value))
	}

	if len(bytesToParse) == 0 || string(bytesToParse) == "null" {
		*s = StringSlice{}
		return nil
	}
	return json.Unmarshal(bytesToParse, s)
}

// QuizJob is a row of quiz_jobs.
type QuizJob struct {
	ID           string         `db:"id"`
	Status       string         `db:"status"`
	Model        sql.NullString `db:"model"`
	Strategy     sql.NullString `db:"strategy"`
	Requested    int            `db:"requested"`
	Produced     int            `db:"produced"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	FinishedAt   time.Time      `db:"finished_at"`
}

// QuizQuestion is a row of quiz_questions.
type QuizQuestion struct {
	ID            string         `db:"id"`
	JobID         string         `db:"job_id"`
	Position      int            `db:"position"`
	Question      string         `db:"question"`
	QuestionType  string         `db:"question_type"`
	Options       StringSlice    `db:"options"`
	CorrectAnswer string         `db:"correct_answer"`
	Explanation   sql.NullString `db:"explanation"`
	SourceFile    string         `db:"source_file"`
	CreatedAt     time.Time      `db:"created_at"`
}
