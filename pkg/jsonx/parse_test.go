package jsonx

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseStrategies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		keys []string
		want map[string]any
	}{
		{
			name: "strict object",
			raw:  `{"code": "print(1)", "tests": "assert True"}`,
			want: map[string]any{"code": "print(1)", "tests": "assert True"},
		},
		{
			name: "backtick fence with json marker",
			raw:  "Here is the result:\n```json\n{\"retry\": true}\n```\nDone.",
			want: map[string]any{"retry": true},
		},
		{
			name: "triple double quote fence",
			raw:  "\"\"\"\n{\"prompt\": \"do it\"}\n\"\"\"",
			want: map[string]any{"prompt": "do it"},
		},
		{
			name: "object buried in prose",
			raw:  `Sure! The plan is {"summary": "write a file"} as requested.`,
			want: map[string]any{"summary": "write a file"},
		},
		{
			name: "trailing commas",
			raw:  `{"hints": ["python",], "retry": false,}`,
			want: map[string]any{"hints": []any{"python"}, "retry": false},
		},
		{
			name: "missing closing brace",
			raw:  `{"summary": "truncated output"`,
			want: map[string]any{"summary": "truncated output"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw, tc.keys)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			for key, want := range tc.want {
				if fmt.Sprintf("%v", got[key]) != fmt.Sprintf("%v", want) {
					t.Errorf("key %q = %v, want %v", key, got[key], want)
				}
			}
		})
	}
}

func TestParseEmptyInputFails(t *testing.T) {
	_, err := Parse("   \n  ", nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestParseRecoversExpectedKeysFromMalformedText(t *testing.T) {
	raw := "the model hums along\nretry: true\nattempts = 3\nreason: \"tests failed\"\n"
	got, err := Parse(raw, []string{"retry", "attempts", "reason"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["retry"] != true {
		t.Errorf("retry = %v, want true", got["retry"])
	}
	if got["attempts"] != float64(3) {
		t.Errorf("attempts = %v, want 3", got["attempts"])
	}
	if got["reason"] != "tests failed" {
		t.Errorf("reason = %v", got["reason"])
	}
}

func TestParseUnrecoverableFails(t *testing.T) {
	_, err := Parse("nothing structured here at all", []string{"plan"})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if parseErr.Raw == "" {
		t.Error("ParseError must carry the raw text")
	}
}

func TestExtractObjectPrefersFences(t *testing.T) {
	raw := "prefix {\"decoy\": 1} middle\n```json\n{\"real\": 2}\n```"
	got := ExtractObject(raw)
	if got != `{"real": 2}` {
		t.Errorf("ExtractObject = %q", got)
	}
}

// scriptedGen replays canned repair responses.
type scriptedGen struct {
	responses []string
	calls     int
	err       error
}

func (g *scriptedGen) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.calls > len(g.responses) {
		return "", fmt.Errorf("no more scripted responses")
	}
	return g.responses[g.calls-1], nil
}

func TestParseWithRepairSkipsGeneratorOnSuccess(t *testing.T) {
	gen := &scriptedGen{}
	out, err := ParseWithRepair(context.Background(), gen, "planner", `{"ok": true}`, "{}", nil, 2)
	if err != nil {
		t.Fatalf("ParseWithRepair: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("out = %v", out)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on a clean parse", gen.calls)
	}
}

func TestParseWithRepairRecoversViaResubmission(t *testing.T) {
	gen := &scriptedGen{responses: []string{`{"fixed": true}`}}
	out, err := ParseWithRepair(context.Background(), gen, "executor", "not json, not even close", "{}", nil, 2)
	if err != nil {
		t.Fatalf("ParseWithRepair: %v", err)
	}
	if out["fixed"] != true {
		t.Errorf("out = %v", out)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestParseWithRepairExhausts(t *testing.T) {
	gen := &scriptedGen{responses: []string{"still bad", "worse"}}
	_, err := ParseWithRepair(context.Background(), gen, "reviewer", "garbage in", "{}", nil, 2)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", exhausted.Attempts)
	}
	if exhausted.Role != "reviewer" {
		t.Errorf("role = %q", exhausted.Role)
	}
	if exhausted.LastRaw != "worse" {
		t.Errorf("last raw = %q, want the final resubmission", exhausted.LastRaw)
	}
}

func TestParseWithRepairWithoutGenerator(t *testing.T) {
	_, err := ParseWithRepair(context.Background(), nil, "planner", "garbage", "{}", nil, 2)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 without a generator", exhausted.Attempts)
	}
}
