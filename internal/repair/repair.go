// Package repair turns near-JSON model output into a parsed document.
//
// Repair runs Pipeline over the raw text, each stage seeing only the previous
// stage's output, then makes one strict parse attempt. A failed parse is
// terminal and is returned as a Failure carrying both texts.
package repair

import "encoding/json"

// Failure describes model output that could not be parsed.
type Failure struct {
	Error       string `json:"error"`
	RawText     string `json:"raw_text"`
	CleanedText string `json:"cleaned_text"`
	ParseError  string `json:"parse_error"`
}

// Result is either a parsed document or a Failure.
type Result struct {
	Document any
	Failure  *Failure
}

// OK reports whether the result holds a parsed document.
func (r Result) OK() bool { return r.Failure == nil }

// MarshalJSON encodes the document itself, or the failure object.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(r.Failure)
	}
	return json.Marshal(r.Document)
}

// Clean runs every pipeline stage and returns the text handed to the parser.
func Clean(raw string) string {
	s := raw
	for _, st := range Pipeline {
		s = st.Apply(s)
	}
	return s
}

// Repair cleans raw and parses it.
func Repair(raw string) Result {
	cleaned := Clean(raw)

	var doc any
	err := json.Unmarshal([]byte(cleaned), &doc)
	if err == nil {
		return Result{Document: doc}
	}
	return Result{Failure: &Failure{
		Error:       "model response is not valid JSON",
		RawText:     raw,
		CleanedText: cleaned,
		ParseError:  err.Error(),
	}}
}
