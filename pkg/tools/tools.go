// Package tools defines the uniform tool contract and the registered tool
// families: activity generation, crisis handling and teacher motivation.
// Every tool turns an extracted topic plus optional classroom context into a
// declared payload, falling back to a canned safe payload instead of
// propagating model failures.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chanakya-ai/chanakya/pkg/registry"
)

// Context is the structured classroom context a teacher may attach to a
// request. All fields are optional.
type Context struct {
	Grade     string `json:"grade,omitempty" mapstructure:"grade"`
	Subject   string `json:"subject,omitempty" mapstructure:"subject"`
	ClassSize int    `json:"class_size,omitempty" mapstructure:"class_size"`
	Language  string `json:"language,omitempty" mapstructure:"language"`
}

func (c *Context) describe() string {
	if c == nil {
		return "none provided"
	}
	s := ""
	if c.Grade != "" {
		s += fmt.Sprintf("grade: %s, ", c.Grade)
	}
	if c.Subject != "" {
		s += fmt.Sprintf("subject: %s, ", c.Subject)
	}
	if c.ClassSize > 0 {
		s += fmt.Sprintf("class size: %d, ", c.ClassSize)
	}
	if s == "" {
		return "none provided"
	}
	return s[:len(s)-2]
}

// Info describes a registered tool: its routing surface plus whether it
// opts into the quality gate and whether success chains a follow-up tool.
type Info struct {
	Name        string
	Description string
	QualityGate bool
	FollowUp    string
}

// Tool is the uniform operation every tool implements.
type Tool interface {
	Info() Info
	Run(ctx context.Context, topic string, tc *Context) (*Result, error)
}

// Kind tags the payload variant inside a Result.
type Kind string

const (
	KindActivity   Kind = "activity"
	KindMotivation Kind = "motivation"
)

// ActivityPayload is the declared output shape of the activity generator
// and the crisis handler.
type ActivityPayload struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Materials       []string `json:"materials"`
	Steps           []string `json:"steps"`
	DurationMinutes int      `json:"duration_minutes"`
	LearningOutcome string   `json:"learning_outcome"`
	Tips            []string `json:"tips,omitempty"`
}

// MotivationPayload is the declared output shape of the motivation tool.
type MotivationPayload struct {
	Title              string   `json:"title"`
	Acknowledgment     string   `json:"acknowledgment"`
	ImmediateTips      []string `json:"immediate_tips"`
	LongTermStrategies []string `json:"long_term_strategies"`
	Inspiration        string   `json:"inspiration"`
	SelfCarePractices  []string `json:"self_care_practices"`
	PerspectiveShifts  []string `json:"perspective_shifts"`
}

// Result is the sum of the tool payload shapes. Exactly one payload field
// matching Kind is set. FollowUp carries the nested result of a chained
// tool invocation.
type Result struct {
	Kind       Kind               `json:"-"`
	Activity   *ActivityPayload   `json:"-"`
	Motivation *MotivationPayload `json:"-"`
	FollowUp   *Result            `json:"-"`
}

// MarshalJSON flattens the active payload's fields to the top level and
// nests the follow-up result under "follow_up".
func (r *Result) MarshalJSON() ([]byte, error) {
	var payload any
	switch r.Kind {
	case KindActivity:
		payload = r.Activity
	case KindMotivation:
		payload = r.Motivation
	default:
		return []byte("null"), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if r.FollowUp == nil {
		return raw, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	flat["follow_up"] = r.FollowUp
	return json.Marshal(flat)
}

// Empty reports whether the result carries no usable payload.
func (r *Result) Empty() bool {
	if r == nil {
		return true
	}
	switch r.Kind {
	case KindActivity:
		return r.Activity == nil || r.Activity.Name == "" || len(r.Activity.Steps) == 0
	case KindMotivation:
		return r.Motivation == nil || r.Motivation.Title == ""
	}
	return true
}

// Summary is the short assistant-message text recorded per successful
// request.
func (r *Result) Summary() string {
	switch r.Kind {
	case KindActivity:
		if r.Activity != nil {
			return "Generated activity: " + r.Activity.Name
		}
	case KindMotivation:
		if r.Motivation != nil {
			return "Shared support: " + r.Motivation.Title
		}
	}
	return "No result generated"
}

// TranslatableFields flattens every translatable text field of the result,
// follow-up included, in a deterministic order matched by
// SetTranslatedFields.
func (r *Result) TranslatableFields() []string {
	var fields []string
	switch r.Kind {
	case KindActivity:
		if a := r.Activity; a != nil {
			fields = append(fields, a.Name, a.Description, a.LearningOutcome)
			fields = append(fields, a.Steps...)
			fields = append(fields, a.Materials...)
			fields = append(fields, a.Tips...)
		}
	case KindMotivation:
		if m := r.Motivation; m != nil {
			fields = append(fields, m.Title, m.Acknowledgment, m.Inspiration)
			fields = append(fields, m.ImmediateTips...)
			fields = append(fields, m.LongTermStrategies...)
			fields = append(fields, m.SelfCarePractices...)
			fields = append(fields, m.PerspectiveShifts...)
		}
	}
	if r.FollowUp != nil {
		fields = append(fields, r.FollowUp.TranslatableFields()...)
	}
	return fields
}

// SetTranslatedFields writes translated values back in the order produced
// by TranslatableFields. A length mismatch leaves the result untouched.
func (r *Result) SetTranslatedFields(fields []string) {
	if len(fields) != len(r.TranslatableFields()) {
		return
	}
	r.applyFields(fields)
}

func (r *Result) applyFields(fields []string) []string {
	take := func(n int) []string {
		out := fields[:n]
		fields = fields[n:]
		return out
	}
	switch r.Kind {
	case KindActivity:
		if a := r.Activity; a != nil {
			head := take(3)
			a.Name, a.Description, a.LearningOutcome = head[0], head[1], head[2]
			copy(a.Steps, take(len(a.Steps)))
			copy(a.Materials, take(len(a.Materials)))
			copy(a.Tips, take(len(a.Tips)))
		}
	case KindMotivation:
		if m := r.Motivation; m != nil {
			head := take(3)
			m.Title, m.Acknowledgment, m.Inspiration = head[0], head[1], head[2]
			copy(m.ImmediateTips, take(len(m.ImmediateTips)))
			copy(m.LongTermStrategies, take(len(m.LongTermStrategies)))
			copy(m.SelfCarePractices, take(len(m.SelfCarePractices)))
			copy(m.PerspectiveShifts, take(len(m.PerspectiveShifts)))
		}
	}
	if r.FollowUp != nil {
		fields = r.FollowUp.applyFields(fields)
	}
	return fields
}

// Registry holds the routed tools.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// Describe renders the registry for the routing prompt: one
// "name: description" line per tool, sorted by name.
func (r *Registry) Describe() string {
	var s string
	for _, name := range r.Names() {
		tool, _ := r.Get(name)
		s += fmt.Sprintf("- %s: %s\n", name, tool.Info().Description)
	}
	return s
}
