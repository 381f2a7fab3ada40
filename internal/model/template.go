package model

import "time"

// Template is a reusable message skeleton.
type Template struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	Category  *string   `json:"category,omitempty" db:"category"`
	Variables []string  `json:"variables" db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TemplateInput carries the fields for a new template.
type TemplateInput struct {
	Name      string   `json:"name"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Category  *string  `json:"category,omitempty"`
	Variables []string `json:"variables"`
}

// TemplatePatch is a partial update. Nil fields are left untouched.
type TemplatePatch struct {
	Name      *string   `json:"name,omitempty"`
	Subject   *string   `json:"subject,omitempty"`
	Body      *string   `json:"body,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Variables *[]string `json:"variables,omitempty"`
}

// Empty reports whether the patch changes no content field.
func (p TemplatePatch) Empty() bool {
	return p.Name == nil && p.Subject == nil && p.Body == nil &&
		p.Category == nil && p.Variables == nil
}
