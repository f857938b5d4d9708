package stream

import "github.com/tidwall/gjson"

// parseNDJSONLine handles one Ollama /api/generate stream line:
// {"response":"...","done":false}. A line may carry both the last fragment
// and the done flag.
func parseNDJSONLine(line []byte) []Event {
	if !gjson.ValidBytes(line) {
		return nil
	}
	res := gjson.ParseBytes(line)
	if !res.IsObject() {
		return nil
	}
	if e := res.Get("error"); e.Exists() {
		return []Event{providerError(e)}
	}
	var evs []Event
	if text := res.Get("response").String(); text != "" {
		evs = append(evs, Event{Kind: KindDelta, Text: text})
	}
	if res.Get("done").Bool() {
		evs = append(evs, Event{Kind: KindDone})
	}
	return evs
}

// providerError reads either a plain string error or an
// {"code":...,"message":...} object.
func providerError(e gjson.Result) Event {
	if e.IsObject() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		return Event{Kind: KindProviderError, Code: int(e.Get("code").Int()), Message: msg}
	}
	return Event{Kind: KindProviderError, Message: e.String()}
}
