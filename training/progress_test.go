package training

import (
	"bytes"
	"testing"
)

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	Stream(&buf, "| Step: 1k | ")
	if got := buf.String(); got != "\r| Step: 1k | " {
		t.Errorf("Unexpected stream output %q", got)
	}
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	SimpleTable(&buf, []TableColumn{
		{Heading: "Steps", Value: "10k Steps"},
		{Heading: "Batch Size", Value: "32"},
	})

	want := "+-----------+------------+\n" +
		"|   Steps   | Batch Size |\n" +
		"+-----------+------------+\n" +
		"| 10k Steps |     32     |\n" +
		"+-----------+------------+\n" +
		" \n"
	if got := buf.String(); got != want {
		t.Errorf("Unexpected table:\n%s\nwant:\n%s", got, want)
	}

	buf.Reset()
	SimpleTable(&buf, nil)
	if buf.Len() != 0 {
		t.Error("Expected no output without columns")
	}
}
