package models

import "strings"

// QuizQuestion is a multiple-choice question generated from a document.
type QuizQuestion struct {
	Question string `json:"question"`
	A        string `json:"a"`
	B        string `json:"b"`
	C        string `json:"c"`
	D        string `json:"d"`
	Correct  string `json:"correct"`
}

// Option returns the text for choice "A".."D" (case-insensitive).
func (q QuizQuestion) Option(choice string) string {
	switch strings.ToUpper(choice) {
	case "A":
		return q.A
	case "B":
		return q.B
	case "C":
		return q.C
	case "D":
		return q.D
	}
	return ""
}

// IsCorrect reports whether choice matches the correct answer, ignoring case.
func (q QuizQuestion) IsCorrect(choice string) bool {
	return choice != "" && strings.EqualFold(strings.TrimSpace(choice), strings.TrimSpace(q.Correct))
}

// Flashcard is a front/back study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}
