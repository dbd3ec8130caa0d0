package dto

import (
	"time"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// TermResponse serializes an academic term.
type TermResponse struct {
	ID       uint      `json:"id"`
	Name     string    `json:"name"`
	StartsOn time.Time `json:"starts_on"`
	EndsOn   time.Time `json:"ends_on"`
	IsActive bool      `json:"is_active"`
}

// TermRef identifies the term an aggregate was computed for.
type TermRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// NewTermResponse converts a term model.
func NewTermResponse(term models.Term) TermResponse {
	return TermResponse{
		ID:       term.ID,
		Name:     term.Name,
		StartsOn: term.StartsOn,
		EndsOn:   term.EndsOn,
		IsActive: term.IsActive,
	}
}

// NewTermRef builds a compact term reference.
func NewTermRef(term models.Term) TermRef {
	return TermRef{ID: term.ID, Name: term.Name}
}
