package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	apierrors "langworker/internal/errors"
	"langworker/internal/engine"
	"langworker/internal/infrastructure"
	api "langworker/pkg/contracts/api/v1"
)

// Analyzer is the admission-controlled engine, normally a *guard.Guard.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) (engine.Result, error)
}

// CheckService validates check requests and runs them through the guard
type CheckService struct {
	analyzer       Analyzer
	language       string
	kind           engine.Kind
	maxSuggestions int
	validate       *validator.Validate
	logger         *slog.Logger
}

// NewCheckService creates a check service. maxSuggestions is applied when a
// request does not ask for a limit; zero means unlimited.
func NewCheckService(analyzer Analyzer, language string, kind engine.Kind, maxSuggestions int, logger *slog.Logger) *CheckService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckService{
		analyzer:       analyzer,
		language:       language,
		kind:           kind,
		maxSuggestions: maxSuggestions,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         infrastructure.WithComponent(logger, "check_service"),
	}
}

// Language returns the language of the loaded resource
func (s *CheckService) Language() string { return s.language }

// Kind returns the analyzer kind of the loaded resource
func (s *CheckService) Kind() engine.Kind { return s.kind }

// Check validates req, analyzes it and maps the result to the wire shape.
// Errors are *apierrors.RequestError for bad payloads, or whatever the
// analyzer returned.
func (s *CheckService) Check(ctx context.Context, req api.CheckRequest) (*api.CheckResponse, error) {
	s.logger.DebugContext(ctx, "request received", slog.String("state", "received"), slog.Int("bytes", len(req.Text)))

	if err := s.validate.Struct(req); err != nil {
		return nil, s.validationError(err)
	}
	s.logger.DebugContext(ctx, "request validated", slog.String("state", "validated"))

	limit := req.MaxSuggestions
	if limit == 0 {
		limit = s.maxSuggestions
	}

	start := time.Now()
	res, err := s.analyzer.Analyze(ctx, engine.Request{
		Text:           req.Text,
		MaxSuggestions: limit,
		Locale:         req.Locale,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "analysis failed",
			slog.String("state", "failed"),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("check: %w", err)
	}
	s.logger.DebugContext(ctx, "analysis completed",
		slog.String("state", "completed"),
		slog.Int("words", len(res.Words)),
		slog.Int("flags", len(res.Flags)),
		slog.Duration("duration", time.Since(start)))

	return s.toResponse(res), nil
}

func (s *CheckService) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.NewBadPayload("request is invalid", err)
	}
	fields := make([]apierrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apierrors.ValidationError{
			Field:   fieldName(fe.Field()),
			Message: validationMessage(fe),
		})
	}
	reqErr := apierrors.NewBadPayload("request validation failed", err)
	reqErr.Fields = fields
	if len(fields) == 1 {
		reqErr.Message = fmt.Sprintf("%s %s", fields[0].Field, fields[0].Message)
	}
	return reqErr
}

func fieldName(name string) string {
	switch name {
	case "Text":
		return "text"
	case "MaxSuggestions":
		return "max_suggestions"
	case "Locale":
		return "locale"
	}
	return name
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

func (s *CheckService) toResponse(res engine.Result) *api.CheckResponse {
	kind := res.Kind
	if kind == engine.KindAny {
		kind = s.kind
	}
	resp := &api.CheckResponse{
		Text:     res.Text,
		Language: s.language,
		Kind:     string(kind),
	}

	if kind == engine.KindSpeller || len(res.Words) > 0 {
		resp.Results = make([]api.WordResult, 0, len(res.Words))
		for _, w := range res.Words {
			suggestions := make([]api.Suggestion, 0, len(w.Suggestions))
			for _, sg := range w.Suggestions {
				suggestions = append(suggestions, api.Suggestion{Value: sg.Value, Weight: sg.Weight})
			}
			resp.Results = append(resp.Results, api.WordResult{
				Word:        w.Word,
				IsCorrect:   w.Correct,
				Suggestions: suggestions,
				Start:       w.Start,
				End:         w.End,
			})
		}
	}

	if kind == engine.KindGrammar || len(res.Flags) > 0 {
		resp.Errors = make([]api.GrammarError, 0, len(res.Flags))
		for _, f := range res.Flags {
			suggestions := f.Suggestions
			if suggestions == nil {
				suggestions = []string{}
			}
			resp.Errors = append(resp.Errors, api.GrammarError{
				Start:       f.Start,
				End:         f.End,
				Text:        f.Text,
				RuleID:      f.RuleID,
				Message:     f.Message,
				Suggestions: suggestions,
			})
		}
	}
	return resp
}
