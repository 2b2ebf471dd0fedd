package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResult = `{
  "session_id": "sess-1",
  "digital_competence": {"Data Literacy": {"score": 72, "rationale": "Uses metrics", "evidence": ["tracked KPIs"]}},
  "digital_mindset": {"Curiosity": {"score": 88, "rationale": "Asks why", "evidence": []}},
  "digital_adaptability": {"score": 75},
  "confidence": 0.82,
  "overall_comments": "Solid"
}`

func TestResultSchema_IsValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(ResultSchema()), &v))
	assert.Equal(t, "object", v["type"])
}

func TestValidateResult_Valid(t *testing.T) {
	assert.NoError(t, ValidateResult([]byte(validResult)))
}

func TestValidateResult_MissingAdaptability(t *testing.T) {
	err := ValidateResult([]byte(`{"digital_competence": {}, "digital_mindset": {}}`))
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	require.Len(t, validationErr.Errors, 1)
	assert.Contains(t, validationErr.Errors[0].Message, "digital_adaptability")
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidateResult_WrongTypes(t *testing.T) {
	err := ValidateResult([]byte(`{
		"digital_competence": {"X": {"score": "high"}},
		"digital_mindset": {},
		"digital_adaptability": {"score": 150},
		"confidence": 2
	}`))
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(validationErr.Errors), 3)
}

func TestValidateResult_NotJSON(t *testing.T) {
	err := ValidateResult([]byte(`{nope`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "x"}`))

	err := ValidateJSONString(schema, `{}`)
	require.Error(t, err)
	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
}
