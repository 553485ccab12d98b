package intervu

import (
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/intervu-client/pkg/cache"
	"github.com/tidwall/gjson"
)

// Category groups questions.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Answer is one answer to a question.
type Answer struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	QuestionID string    `json:"questionId,omitempty"`
}

// Question is an interview question with its answers.
type Question struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Category  *Category `json:"category,omitempty"`
	Answers   []Answer  `json:"answers"`
}

// QuestionFilter selects a page of questions. Zero fields are not sent.
type QuestionFilter struct {
	Search string
	Skip   int
	Take   int
}

// Variables returns the GraphQL variables for f.
func (f QuestionFilter) Variables() cache.Variables {
	vars := cache.Variables{}
	if s := strings.TrimSpace(f.Search); s != "" {
		vars["search"] = s
	}
	if f.Skip > 0 {
		vars["skip"] = f.Skip
	}
	if f.Take > 0 {
		vars["take"] = f.Take
	}
	return vars
}

// QuestionInput creates a question.
type QuestionInput struct {
	Title      string
	CategoryID string
}

// QuestionUpdate changes a question. Nil fields are left unchanged.
type QuestionUpdate struct {
	Title      *string
	CategoryID *string
}

// AnswerInput creates an answer.
type AnswerInput struct {
	QuestionID string
	Content    string
}

// AnswerUpdate changes an answer. Nil fields are left unchanged.
type AnswerUpdate struct {
	Content *string
}

func parseCategory(r gjson.Result) Category {
	return Category{
		ID:   r.Get("id").String(),
		Name: r.Get("name").String(),
	}
}

func parseAnswer(r gjson.Result, questionID string) Answer {
	if qid := r.Get("question.id"); qid.Exists() {
		questionID = qid.String()
	}
	return Answer{
		ID:         r.Get("id").String(),
		Content:    r.Get("content").String(),
		CreatedAt:  parseTime(r.Get("createdAt")),
		QuestionID: questionID,
	}
}

func parseQuestion(r gjson.Result) Question {
	q := Question{
		ID:        r.Get("id").String(),
		Title:     r.Get("title").String(),
		CreatedAt: parseTime(r.Get("createdAt")),
	}
	if c := r.Get("category"); c.IsObject() {
		cat := parseCategory(c)
		q.Category = &cat
	}
	for _, a := range r.Get("answers").Array() {
		q.Answers = append(q.Answers, parseAnswer(a, q.ID))
	}
	return q
}

// parseTime accepts RFC 3339 strings and unix milliseconds, as a number or a string.
func parseTime(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		return time.UnixMilli(r.Int()).UTC()
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(r.Str, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}

// truthy interprets the result of a delete mutation, which may be a boolean
// or the deleted ID.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.String:
		return r.Str != "" && r.Str != "false"
	case gjson.Number:
		return r.Num != 0
	case gjson.JSON:
		return true
	default:
		return false
	}
}
