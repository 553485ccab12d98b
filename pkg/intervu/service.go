// Package intervu exposes the intervu question bank API on top of the query
// cache. Reads go through the cache, mutations go straight to the upstream
// and invalidate the cached queries they affect.
package intervu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/intervu-client/pkg/cache"
	"github.com/Sternrassler/intervu-client/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is returned when a response lacks the expected fields.
var ErrMalformedResponse = errors.New("malformed response")

// Service is the intervu API.
type Service struct {
	cache  *cache.Cache
	doer   cache.Fetcher
	logger zerolog.Logger
}

// NewService creates a service reading through qc and sending mutations with doer.
func NewService(qc *cache.Cache, doer cache.Fetcher, logger zerolog.Logger) *Service {
	return &Service{
		cache:  qc,
		doer:   doer,
		logger: logger.With().Str("component", "intervu").Logger(),
	}
}

// Questions returns the questions matching f.
func (s *Service) Questions(ctx context.Context, f QuestionFilter, opts ...cache.Option) ([]Question, error) {
	data, err := s.cache.Get(ctx, QueryQuestions, f.Variables(), opts...)
	if err != nil {
		return nil, err
	}
	return decodeQuestions(data)
}

// Categories returns every category.
func (s *Service) Categories(ctx context.Context, opts ...cache.Option) ([]Category, error) {
	data, err := s.cache.Get(ctx, QueryCategories, nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeCategories(data)
}

// SubscribeQuestions calls fn whenever the cached questions for f change.
// fn receives nil when the entry is invalidated.
func (s *Service) SubscribeQuestions(f QuestionFilter, fn func([]Question)) func() {
	return s.cache.Subscribe(QueryQuestions, f.Variables(), func(data json.RawMessage) {
		if data == nil {
			fn(nil)
			return
		}
		questions, err := decodeQuestions(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping undecodable questions update")
			return
		}
		fn(questions)
	})
}

// SubscribeCategories calls fn whenever the cached categories change.
// fn receives nil when the entry is invalidated.
func (s *Service) SubscribeCategories(fn func([]Category)) func() {
	return s.cache.Subscribe(QueryCategories, nil, func(data json.RawMessage) {
		if data == nil {
			fn(nil)
			return
		}
		categories, err := decodeCategories(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping undecodable categories update")
			return
		}
		fn(categories)
	})
}

// FetchPage returns one page of unfiltered questions as raw JSON objects.
// It satisfies pagination.PageFetcher.
func (s *Service) FetchPage(ctx context.Context, skip, take int) ([]json.RawMessage, error) {
	return s.searchPager("").FetchPage(ctx, skip, take)
}

// AllQuestions walks every page of questions matching search.
func (s *Service) AllQuestions(ctx context.Context, search string, config pagination.Config) ([]Question, error) {
	items, err := pagination.NewBatchFetcher(s.searchPager(search), config).FetchAll(ctx)

	questions := make([]Question, 0, len(items))
	for _, item := range items {
		questions = append(questions, parseQuestion(gjson.ParseBytes(item)))
	}
	return questions, err
}

func (s *Service) searchPager(search string) pagination.PageFetcherFunc {
	return func(ctx context.Context, skip, take int) ([]json.RawMessage, error) {
		vars := QuestionFilter{Search: search, Skip: skip, Take: take}.Variables()
		data, err := s.cache.Get(ctx, QueryQuestions, vars)
		if err != nil {
			return nil, err
		}
		list, err := field(data, "intervuQuestions")
		if err != nil {
			return nil, err
		}
		var out []json.RawMessage
		for _, item := range list.Array() {
			out = append(out, json.RawMessage(item.Raw))
		}
		return out, nil
	}
}

// CreateCategory creates a category.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	vars := cache.Variables{"data": map[string]any{"name": name}}
	r, err := s.mutate(ctx, MutationCreateCategory, vars, "createIntervuCategory", scopeCategories)
	if err != nil {
		return Category{}, err
	}
	return parseCategory(r), nil
}

// CreateQuestion creates a question.
func (s *Service) CreateQuestion(ctx context.Context, in QuestionInput) (Question, error) {
	data := map[string]any{"title": in.Title}
	if in.CategoryID != "" {
		data["categoryId"] = in.CategoryID
	}
	r, err := s.mutate(ctx, MutationCreateQuestion, cache.Variables{"data": data}, "createIntervuQuestion", scopeQuestions)
	if err != nil {
		return Question{}, err
	}
	return parseQuestion(r), nil
}

// CreateAnswer adds an answer to a question.
func (s *Service) CreateAnswer(ctx context.Context, in AnswerInput) (Answer, error) {
	data := map[string]any{"questionId": in.QuestionID, "content": in.Content}
	r, err := s.mutate(ctx, MutationCreateAnswer, cache.Variables{"data": data}, "createIntervuAnswer", scopeQuestions)
	if err != nil {
		return Answer{}, err
	}
	return parseAnswer(r, in.QuestionID), nil
}

// UpdateQuestion changes a question.
func (s *Service) UpdateQuestion(ctx context.Context, id string, in QuestionUpdate) (Question, error) {
	data := map[string]any{}
	if in.Title != nil {
		data["title"] = *in.Title
	}
	if in.CategoryID != nil {
		data["categoryId"] = *in.CategoryID
	}
	vars := cache.Variables{"id": id, "data": data}
	r, err := s.mutate(ctx, MutationUpdateQuestion, vars, "updateIntervuQuestion", scopeQuestions)
	if err != nil {
		return Question{}, err
	}
	return parseQuestion(r), nil
}

// DeleteQuestion deletes a question and reports whether the upstream confirmed it.
func (s *Service) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	r, err := s.mutate(ctx, MutationDeleteQuestion, cache.Variables{"id": id}, "deleteIntervuQuestion", scopeQuestions)
	if err != nil {
		return false, err
	}
	return truthy(r), nil
}

// UpdateAnswer changes an answer.
func (s *Service) UpdateAnswer(ctx context.Context, id string, in AnswerUpdate) (Answer, error) {
	data := map[string]any{}
	if in.Content != nil {
		data["content"] = *in.Content
	}
	vars := cache.Variables{"id": id, "data": data}
	r, err := s.mutate(ctx, MutationUpdateAnswer, vars, "updateIntervuAnswer", scopeQuestions)
	if err != nil {
		return Answer{}, err
	}
	return parseAnswer(r, ""), nil
}

// DeleteAnswer deletes an answer and reports whether the upstream confirmed it.
func (s *Service) DeleteAnswer(ctx context.Context, id string) (bool, error) {
	r, err := s.mutate(ctx, MutationDeleteAnswer, cache.Variables{"id": id}, "deleteIntervuAnswer", scopeQuestions)
	if err != nil {
		return false, err
	}
	return truthy(r), nil
}

// scope lists the cached queries a mutation makes obsolete.
type scope []string

var (
	scopeCategories = scope{QueryCategories}
	scopeQuestions  = scope{QueryQuestions}
)

// mutate sends a mutation, invalidates the affected queries and returns the
// mutation's root field.
func (s *Service) mutate(ctx context.Context, doc string, vars cache.Variables, root string, affected scope) (gjson.Result, error) {
	data, err := s.doer.Fetch(ctx, doc, vars)
	if err != nil {
		return gjson.Result{}, err
	}

	for _, query := range affected {
		n := s.cache.InvalidateQuery(query)
		s.logger.Debug().
			Str("mutation", root).
			Int("invalidated", n).
			Msg("Invalidated cached queries after mutation")
	}

	return field(data, root)
}

func field(data json.RawMessage, name string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	r := gjson.GetBytes(data, name)
	if !r.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: missing field %q", ErrMalformedResponse, name)
	}
	return r, nil
}

func decodeQuestions(data json.RawMessage) ([]Question, error) {
	list, err := field(data, "intervuQuestions")
	if err != nil {
		return nil, err
	}
	questions := []Question{}
	for _, item := range list.Array() {
		questions = append(questions, parseQuestion(item))
	}
	return questions, nil
}

func decodeCategories(data json.RawMessage) ([]Category, error) {
	list, err := field(data, "intervuCategories")
	if err != nil {
		return nil, err
	}
	categories := []Category{}
	for _, item := range list.Array() {
		categories = append(categories, parseCategory(item))
	}
	return categories, nil
}
