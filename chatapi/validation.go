package chatapi

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxContentLength = 10000

var cuidPattern = regexp.MustCompile(`^[cC][^\s-]{8,}$`)

type chatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role" validate:"oneof=user assistant system"`
	Content string `json:"content" validate:"min=1,max=10000"`
}

type chatRequest struct {
	Messages   []chatMessage `json:"messages" validate:"required,min=1,dive"`
	DocumentID string        `json:"documentId" validate:"cuid"`
}

// requestValidator é compartilhado: o validator guarda cache das structs.
var requestValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("cuid", func(fl validator.FieldLevel) bool {
		return cuidPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// fieldError é um problema de validação em um campo ("messages.0.content").
type fieldError struct {
	Path    string
	Message string
}

type validationErrors []fieldError

func (v validationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		if e.Path == "" {
			parts = append(parts, e.Message)
			continue
		}
		parts = append(parts, e.Path+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// validate devolve todos os problemas do request, na ordem dos campos.
func (r chatRequest) validate() validationErrors {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return validationErrors{{Message: err.Error()}}
	}

	out := make(validationErrors, 0, len(fes))
	for _, fe := range fes {
		out = append(out, fieldError{Path: fieldPath(fe.Namespace()), Message: messageFor(fe)})
	}
	return out
}

// fieldPath converte "chatRequest.messages[0].role" em "messages.0.role".
func fieldPath(namespace string) string {
	_, path, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	path = strings.ReplaceAll(path, "[", ".")
	return strings.ReplaceAll(path, "]", "")
}

func messageFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "messages":
		return "At least one message is required"
	case "role":
		return "Invalid role, expected user, assistant or system"
	case "content":
		if fe.Tag() == "max" {
			return "Message content too long"
		}
		return "Message content cannot be empty"
	case "documentId":
		return "Invalid document ID format"
	}
	return "Invalid value"
}
