package utils

import (
	"testing"
)

func TestExtractJSONPlainObject(t *testing.T) {
	content := `{"riskLevel":"Low"}`
	if got := ExtractJSON(content); got != content {
		t.Fatalf("unexpected json: %s", got)
	}
}

// TestExtractJSONFromCodeBlock 验证从代码块和说明文字中提取
func TestExtractJSONFromCodeBlock(t *testing.T) {
	content := "Here is the audit:\n```json\n{\"riskLevel\": \"High\", \"topRisks\": [{\"name\": \"a\"}]}\n```\nThanks."
	want := "{\"riskLevel\": \"High\", \"topRisks\": [{\"name\": \"a\"}]}"
	if got := ExtractJSON(content); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

// TestExtractJSONBracesInsideStrings 字符串中的花括号不影响层级
func TestExtractJSONBracesInsideStrings(t *testing.T) {
	content := `prefix {"why": "uses {placeholders} and \"quoted }\" text", "n": {"x": 1}} suffix {"other": 2}`
	want := `{"why": "uses {placeholders} and \"quoted }\" text", "n": {"x": 1}}`
	if got := ExtractJSON(content); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestExtractJSONIncompleteReturnsOriginal(t *testing.T) {
	content := `{"riskLevel": "High", "topRisks": [`
	if got := ExtractJSON(content); got != content {
		t.Fatalf("expected original content, got %s", got)
	}
	if got := ExtractJSON("no json here"); got != "no json here" {
		t.Fatalf("expected original content, got %s", got)
	}
}

func TestExtractJSONSkipsStrayClosingBrace(t *testing.T) {
	content := `} noise {"a": 1}`
	if got := ExtractJSON(content); got != `{"a": 1}` {
		t.Fatalf("unexpected json: %s", got)
	}
}

func TestToJSON(t *testing.T) {
	if got := ToJSON(map[string]int{"a": 1}); got != `{"a":1}` {
		t.Fatalf("unexpected json: %s", got)
	}
	if got := ToJSON(make(chan int)); got != "" {
		t.Fatalf("expected empty string for unsupported value, got %s", got)
	}
}
