package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldViolation names one schema violation: the JSON path of the offending
// field and a human-readable message.
type FieldViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaError reports a blob that failed strict validation.
type SchemaError struct {
	Violations []FieldViolation
}

func (e *SchemaError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "metadata schema violation"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Message)
	}
	return "metadata schema violation: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report JSON field names, not Go struct field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes raw into a ConversationMetadata, rejecting unknown fields,
// type mismatches, and enum/format violations. A nil or empty blob parses to
// the zero value, matching a conversation that has not been touched yet.
func Parse(raw []byte) (ConversationMetadata, error) {
	var md ConversationMetadata
	if len(bytes.TrimSpace(raw)) == 0 {
		return md, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&md); err != nil {
		return ConversationMetadata{}, &SchemaError{Violations: []FieldViolation{decodeViolation(err)}}
	}

	if err := validate.Struct(md); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return ConversationMetadata{}, &SchemaError{Violations: []FieldViolation{{Path: "$", Message: err.Error()}}}
		}
		out := make([]FieldViolation, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldViolation{
				Path:    fieldPath(fe.Namespace()),
				Message: violationMessage(fe),
			})
		}
		return ConversationMetadata{}, &SchemaError{Violations: out}
	}
	return md, nil
}

// Serialize is the inverse of Parse. It is total for values that satisfy the
// schema: the struct contains nothing json.Marshal can fail on.
func Serialize(md ConversationMetadata) ([]byte, error) {
	return json.Marshal(md)
}

func decodeViolation(err error) FieldViolation {
	switch e := err.(type) {
	case *json.UnmarshalTypeError:
		return FieldViolation{Path: e.Field, Message: fmt.Sprintf("expected %s, got %s", e.Type, e.Value)}
	case *json.SyntaxError:
		return FieldViolation{Path: "$", Message: "invalid JSON: " + e.Error()}
	default:
		// json offers no typed error for unknown fields
		if msg := err.Error(); strings.Contains(msg, "unknown field") {
			return FieldViolation{Path: strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`), Message: "unknown field"}
		}
		return FieldViolation{Path: "$", Message: err.Error()}
	}
}

// fieldPath turns validator's namespace ("ConversationMetadata.questionAnswers[0].question")
// into a JSON path relative to the blob root.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "required":
		return "is required"
	case "datetime":
		return fmt.Sprintf("must be an RFC3339 timestamp, got %q", fe.Value())
	case "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
