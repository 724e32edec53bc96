package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationProblem is a ProblemDetail listing the rejected fields.
type ValidationProblem struct {
	ProblemDetail
	Errors map[string]string `json:"errors,omitempty"`
}

// FieldErrors flattens validator errors into a field -> rule map. Errors that
// are not validation errors are reported under "body".
func FieldErrors(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["body"] = "invalid"
		return fields
	}
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}

// Invalid writes a 400 problem naming the offending fields.
func Invalid(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, "application/problem+json", http.StatusBadRequest, ValidationProblem{
		ProblemDetail: ProblemDetail{
			Type:   "about:blank",
			Title:  http.StatusText(http.StatusBadRequest),
			Status: http.StatusBadRequest,
			Detail: "request validation failed",
		},
		Errors: fields,
	})
}

// Bind decodes the JSON body into target and validates it. On failure it
// writes the problem response and returns false.
func Bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, target any) bool {
	if err := DecodeJSON(w, r, target); err != nil {
		Invalid(w, map[string]string{"body": "malformed json"})
		return false
	}
	if err := v.Struct(target); err != nil {
		Invalid(w, FieldErrors(err))
		return false
	}
	return true
}
