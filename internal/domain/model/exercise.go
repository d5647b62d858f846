package model

import (
	"encoding/json"
	"strings"
)

// Example is one input/expected-output pair of an exercise.
type Example struct {
	Input          string `json:"entrada"`
	ExpectedOutput string `json:"salida"`
}

// ExerciseContent is the structured body of an exercise. The backend stores it
// either as a JSON object or as a JSON-encoded string.
type ExerciseContent struct {
	Examples []Example `json:"ejemplos,omitempty"`
}

func (c *ExerciseContent) UnmarshalJSON(b []byte) error {
	type plain ExerciseContent
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			return nil
		}
		b = []byte(inner)
	}
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = ExerciseContent(p)
	return nil
}

// CatalogExercise is the full exercise descriptor served by the backend.
type CatalogExercise struct {
	ID       EntityID         `json:"id"`
	Title    string           `json:"titulo,omitempty"`
	Score    Points           `json:"puntaje,omitempty"`
	Examples []Example        `json:"ejemplos,omitempty"`
	Content  *ExerciseContent `json:"contenido,omitempty"`
}

// FirstExample returns the first declared example, looking at the top-level list
// before the one nested in the content.
func (e CatalogExercise) FirstExample() (Example, bool) {
	if len(e.Examples) > 0 {
		return e.Examples[0], true
	}
	if e.Content != nil && len(e.Content.Examples) > 0 {
		return e.Content.Examples[0], true
	}
	return Example{}, false
}

// EvaluationDetails is the backend's description of an evaluation.
type EvaluationDetails struct {
	ID        EntityID          `json:"id"`
	Title     string            `json:"titulo,omitempty"`
	Exercises []CatalogExercise `json:"ejercicios"`
}

// ExerciseItem is one student answer in a batch.
type ExerciseItem struct {
	ExerciseID EntityID    `json:"ejercicio_id"`
	Code       string      `json:"codigo"`
	LanguageID LanguageRef `json:"language_id"`
	Language   LanguageRef `json:"language"`
	Score      Points      `json:"puntaje,omitempty"`
}

// Lang returns whichever language reference the caller provided.
func (it ExerciseItem) Lang() LanguageRef {
	if it.LanguageID.IsSet() {
		return it.LanguageID
	}
	return it.Language
}
