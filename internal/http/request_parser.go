package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"ledger/internal/core"
)

// createTransactionRequest is the POST / body.
type createTransactionRequest struct {
	Title  string  `json:"title" validate:"required,max=200"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Type   string  `json:"type" validate:"required,oneof=credit debit"`
}

// ValidationIssue describes one rejected field.
type ValidationIssue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// parseCreateRequest decodes and validates the create body. On failure the
// returned builder holds the 400 response and the store must not be touched.
func parseCreateRequest(w http.ResponseWriter, r *http.Request) (core.NewTransaction, *JSONResponseBuilder) {
	var req createTransactionRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return core.NewTransaction{}, ErrorResponse(http.StatusBadRequest, "invalid request body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return core.NewTransaction{}, ErrorResponse(http.StatusBadRequest, "invalid request body")
	}

	req.Title = sanitizeInput(req.Title)

	if err := requestValidator().Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return core.NewTransaction{}, validationFailed(issuesFromValidator(verrs))
		}
		return core.NewTransaction{}, ErrorResponse(http.StatusBadRequest, "invalid request body")
	}

	amount, err := core.MoneyFromFloat(req.Amount)
	if err != nil {
		return core.NewTransaction{}, validationFailed(validationDetailFromCore(err))
	}

	in := core.NewTransaction{
		Title:  req.Title,
		Amount: amount,
		Type:   core.TransactionType(req.Type),
	}
	if err := in.Validate(); err != nil {
		return core.NewTransaction{}, validationFailed(validationDetailFromCore(err))
	}

	return in, nil
}

func issuesFromValidator(verrs validator.ValidationErrors) []ValidationIssue {
	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ValidationIssue{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: issueMessage(fe),
		})
	}
	return issues
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrEmptyTitle) ||
		errors.Is(err, core.ErrTitleTooLong) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidType)
}

// validationDetailFromCore maps a domain validation error to the same
// detail shape produced by the request validator.
func validationDetailFromCore(err error) []ValidationIssue {
	switch {
	case errors.Is(err, core.ErrEmptyTitle):
		return []ValidationIssue{{Field: "title", Rule: "required", Message: "title is required"}}
	case errors.Is(err, core.ErrTitleTooLong):
		return []ValidationIssue{{Field: "title", Rule: "max", Message: "title must be at most 200 characters"}}
	case errors.Is(err, core.ErrInvalidAmount):
		return []ValidationIssue{{Field: "amount", Rule: "gt", Message: "amount must be a positive number with at most two decimals"}}
	case errors.Is(err, core.ErrInvalidType):
		return []ValidationIssue{{Field: "type", Rule: "oneof", Message: "type must be one of: credit debit"}}
	default:
		return nil
	}
}
