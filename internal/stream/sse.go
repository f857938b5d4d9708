package stream

import (
	"bytes"

	"github.com/tidwall/gjson"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// parseSSELine handles one chat-completions SSE line. Comments (": ping"),
// non-data fields and unparseable payloads yield nothing.
func parseSSELine(line []byte) []Event {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if bytes.Equal(payload, doneMarker) {
		return []Event{{Kind: KindDone}}
	}
	if !gjson.ValidBytes(payload) {
		return nil
	}
	res := gjson.ParseBytes(payload)
	if e := res.Get("error"); e.Exists() && e.IsObject() {
		return []Event{providerError(e)}
	}

	choice := res.Get("choices.0")
	if !choice.Exists() {
		return nil
	}
	var text string
	if c := choice.Get("delta.content"); c.Exists() {
		text = c.String()
	} else {
		text = choice.Get("text").String()
	}
	if text == "" {
		return nil
	}
	return []Event{{Kind: KindDelta, Text: text}}
}
