package models

// QuestionType is the closed set of question variants the grader understands.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionEssay          QuestionType = "ESSAY"
	QuestionFileUpload     QuestionType = "FILE_UPLOAD"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionSingleChoice, QuestionTrueFalse,
		QuestionShortAnswer, QuestionEssay, QuestionFileUpload:
		return true
	}
	return false
}

// Objective reports whether answers to this type can be scored automatically.
func (t QuestionType) Objective() bool {
	switch t {
	case QuestionMultipleChoice, QuestionSingleChoice, QuestionTrueFalse:
		return true
	}
	return false
}

// Question is one gradable item embedded in an Assessment.
type Question struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        int          `json:"points"`
	Order         int          `json:"order"`
	IsRequired    bool         `json:"is_required"`
	Explanation   string       `json:"explanation,omitempty"`
}
