package daemon

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestResponseAddMessage(t *testing.T) {
	r := &Response{}
	r.AddMessage("hello", "INFO")
	r.AddMessage("boom", "ERROR")

	if len(r.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(r.Messages))
	}
	if r.Messages[0].Message != "hello" || r.Messages[0].Status != "INFO" {
		t.Errorf("unexpected first message: %+v", r.Messages[0])
	}
	if !r.HasErrors() {
		t.Error("expected HasErrors to report the ERROR message")
	}
}

func TestResponseHasNoErrors(t *testing.T) {
	r := &Response{}
	r.AddMessage("fine", "INFO")
	r.AddMessage("meh", "WARN")

	if r.HasErrors() {
		t.Error("WARN should not count as an error")
	}
}

func TestResponseToJSONOmitsNilData(t *testing.T) {
	r := &Response{}
	r.AddMessage("nothing here", "INFO")

	jsonStr := r.ToJSON()
	if strings.Contains(jsonStr, "data") {
		t.Errorf("expected 'data' to be omitted when nil: %s", jsonStr)
	}
}

func TestResponseToJSONRoundTrip(t *testing.T) {
	r := &Response{}
	r.AddMessage("with data", "INFO")
	r.AddData(map[string]int{"port": 3000})

	var parsed Response
	if err := json.Unmarshal([]byte(r.ToJSON()), &parsed); err != nil {
		t.Fatalf("response JSON did not parse: %v", err)
	}
	if len(parsed.Messages) != 1 || parsed.Messages[0].Message != "with data" {
		t.Errorf("messages lost in round trip: %+v", parsed.Messages)
	}
	if parsed.Data == nil {
		t.Error("data lost in round trip")
	}
}

func TestStreamingResponseWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	sr := NewStreamingResponse(&buf)

	if err := sr.WriteMessage("streaming test", "INFO"); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}

	output := buf.String()
	if !strings.HasSuffix(output, "\n") {
		t.Error("expected output to end with newline")
	}

	var msg ResponseMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &msg); err != nil {
		t.Fatalf("failed to parse streaming message: %v", err)
	}
	if msg.Message != "streaming test" || msg.Status != "INFO" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestStreamingResponseMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	sr := NewStreamingResponse(&buf)

	sr.WriteMessage("first", "INFO")
	sr.WriteMessage("second", "WARN")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}
	for i, line := range lines {
		var msg ResponseMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}
