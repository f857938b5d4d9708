package repair

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestRepairKeepsValidJSON(t *testing.T) {
	inputs := []string{
		`{"a":1}`,
		`{"items":[{"descripcion":"Item, }","cantidad":2}],"total":10.5}`,
		`[{"a":1},{"b":[1,2,3]}]`,
		`{"nested":{"x":null,"y":true,"z":"text with ] and }"}}`,
		`{"cuit":"20-12345678-9","fecha":"2024-01-15"}`,
		`{"nota": "Tel: 4444-5555, int 2"}`,
		`{"obs": "Total: 100+21, IVA incluido"}`,
		`{"a": "x\": 1+2, y", "b": 3}`,
	}
	for _, in := range inputs {
		res := Repair(in)
		if !res.OK() {
			t.Fatalf("Repair(%q) failed: %+v", in, res.Failure)
		}
		if want := mustParse(t, in); !reflect.DeepEqual(res.Document, want) {
			t.Errorf("Repair(%q) = %#v, want %#v", in, res.Document, want)
		}
	}
}

func TestRepairFencedBlock(t *testing.T) {
	inner := `{"total_final": 121.5, "items": []}`
	for _, raw := range []string{
		"```json\n" + inner + "\n```",
		"Here is the invoice:\n```json " + inner + "```\nThanks!",
		"```\n" + inner + "\n```",
		"```JSON\n" + inner + "\n```",
	} {
		res := Repair(raw)
		if !res.OK() {
			t.Fatalf("Repair(%q) failed: %+v", raw, res.Failure)
		}
		if want := mustParse(t, inner); !reflect.DeepEqual(res.Document, want) {
			t.Errorf("Repair(%q) = %#v, want %#v", raw, res.Document, want)
		}
	}
}

func TestRepairBraceFallback(t *testing.T) {
	res := Repair(`Sure! The data is {"a": 1} hope it helps`)
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if !reflect.DeepEqual(res.Document, map[string]any{"a": 1.0}) {
		t.Errorf("got %#v", res.Document)
	}
}

func TestRepairTrailingComma(t *testing.T) {
	res := Repair(`{"a":1,}`)
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if !reflect.DeepEqual(res.Document, map[string]any{"a": 1.0}) {
		t.Errorf("got %#v", res.Document)
	}

	res = Repair("{\"items\": [1, 2, 3,\n ],\n}")
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
}

func TestRepairArithmetic(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"quoted sum", `{"total": "100.00 + 200.00"}`, map[string]any{"total": 300.0}},
		{"bare sum", `{"total": 100.00 + 200.00}`, map[string]any{"total": 300.0}},
		{"bare product", `{"subtotal": 3 * 12.5, "n": 1}`, map[string]any{"subtotal": 37.5, "n": 1.0}},
		{"quoted cuit", `{"cuit": "20-12345678-9"}`, map[string]any{"cuit": "20-12345678-9"}},
		{"bare cuit", `{"cuit": 20-12345678-9}`, map[string]any{"cuit": "20-12345678-9"}},
		{"bare date", `{"fecha": 2024-01-15}`, map[string]any{"fecha": "2024-01-15"}},
		{"negative number untouched", `{"ajuste": -5}`, map[string]any{"ajuste": -5.0}},
		{"text untouched", `{"descripcion": "Pack 2+1"}`, map[string]any{"descripcion": "Pack 2+1"}},
		{"bare division by zero quoted", `{"x": 1 / 0}`, map[string]any{"x": "1 / 0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Repair(tt.raw)
			if !res.OK() {
				t.Fatalf("Repair(%q) failed: %+v", tt.raw, res.Failure)
			}
			if !reflect.DeepEqual(res.Document, tt.want) {
				t.Errorf("Repair(%q) = %#v, want %#v", tt.raw, res.Document, tt.want)
			}
		})
	}
}

func TestRepairArithmeticSkipsStringContents(t *testing.T) {
	inputs := []string{
		`{"nota": "Tel: 4444-5555, int 2"}`,
		`{"obs": "Total: 100+21, IVA incluido"}`,
		`{"desc": "fecha: 2024-01-15}"}`,
	}
	for _, in := range inputs {
		if got := RepairArithmetic(in); got != in {
			t.Errorf("RepairArithmetic(%q) = %q", in, got)
		}
	}
	if got := RepairArithmetic(`{"nota": "a: 1+1,", "total": 1+1}`); got != `{"nota": "a: 1+1,", "total": 2}` {
		t.Errorf("mixed input = %q", got)
	}
}

func TestRepairStripsControlCharacters(t *testing.T) {
	res := Repair("\x00\x1b{\"a\":\t\"b\"}\x07")
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if !reflect.DeepEqual(res.Document, map[string]any{"a": "b"}) {
		t.Errorf("got %#v", res.Document)
	}
}

func TestRepairFailureIsTerminal(t *testing.T) {
	raw := "```json\n{\"a\": [1, 2}\n```"
	res := Repair(raw)
	if res.OK() {
		t.Fatalf("expected failure, got %#v", res.Document)
	}
	f := res.Failure
	if f.RawText != raw {
		t.Errorf("RawText = %q", f.RawText)
	}
	if f.CleanedText != `{"a": [1, 2}` {
		t.Errorf("CleanedText = %q", f.CleanedText)
	}
	if f.ParseError == "" || f.Error == "" {
		t.Errorf("missing error details: %+v", f)
	}
}

func TestResultMarshalJSON(t *testing.T) {
	ok, err := json.Marshal(Repair(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(ok) != `{"a":1}` {
		t.Errorf("success encoding = %s", ok)
	}

	bad, err := json.Marshal(Repair("not json at all"))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"error"`, `"raw_text":"not json at all"`, `"cleaned_text"`, `"parse_error"`} {
		if !strings.Contains(string(bad), key) {
			t.Errorf("failure encoding %s missing %s", bad, key)
		}
	}
}

func TestStagesArePure(t *testing.T) {
	in := "noise ```json\n{\"a\": 1 + 2,}\n``` noise"
	for _, st := range Pipeline {
		first := st.Apply(in)
		if second := st.Apply(in); first != second {
			t.Errorf("stage %s is not deterministic", st.Name)
		}
		in = first
	}
	if in != `{"a": 3}` {
		t.Errorf("pipeline output = %q", in)
	}
}
