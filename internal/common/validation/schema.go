package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// QuestionSchema describes the JSON body of a chat request.
const QuestionSchema = `{
  "type": "object",
  "properties": {
    "session_id": {"type": "string", "maxLength": 128, "pattern": "^[A-Za-z0-9._:-]*$"},
    "text": {"type": "string", "maxLength": %d},
    "image_data_url": {"type": "string", "pattern": "^data:image/[a-z+.-]+;base64,"}
  },
  "anyOf": [
    {"required": ["text"], "properties": {"text": {"pattern": "\\S"}}},
    {"required": ["image_data_url"]}
  ],
  "additionalProperties": false
}`

// ValidateQuestion checks a decoded chat request body.
func ValidateQuestion(doc map[string]interface{}, maxTextLength int) (*ValidationResult, error) {
	return ValidateDocument(fmt.Sprintf(QuestionSchema, maxTextLength), doc)
}

// ValidateDocument validates any Go value against a JSON schema string.
func ValidateDocument(schemaJSON string, doc interface{}) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr, nil
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Error joins all messages, or returns "" when valid.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}
