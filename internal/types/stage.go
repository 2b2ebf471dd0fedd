// Package types provides type definitions for structured data exchanged with the
// scoring API and the assessment portal.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StageCode identifies an assessment phase.
type StageCode int

// Stage codes. StageComposite is a client-side label only and is never sent to
// the scoring API.
const (
	StageCaselet   StageCode = 3
	StageInterview StageCode = 4
	StageComposite StageCode = 34
)

// String returns the display name of the stage.
func (s StageCode) String() string {
	switch s {
	case StageCaselet:
		return "Caselet"
	case StageInterview:
		return "Interview"
	case StageComposite:
		return "Caselet + Interview"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Valid reports whether s is one of the known stage codes.
func (s StageCode) Valid() bool {
	return s == StageCaselet || s == StageInterview || s == StageComposite
}

// First returns the stage a run starts on. A composite run starts on the caselet.
func (s StageCode) First() StageCode {
	if s == StageComposite {
		return StageCaselet
	}
	return s
}

// ID is an opaque identifier issued by a remote service. The scoring API is not
// consistent about emitting identifiers as strings, so numbers are accepted too.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

// Number is a float that also decodes from a quoted decimal, which is how the
// portal backend returns DECIMAL columns.
type Number float64

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}
