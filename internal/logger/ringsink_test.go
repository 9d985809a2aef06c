package logger

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sslproxymanager/core/theme"
)

func TestRingSink_KeepsOnlyTailWithinCapacity(t *testing.T) {
	rb := NewRingSink(10)
	rb.Write([]byte("0123456789ABCDEF"))
	if got := string(rb.data); got != "6789ABCDEF" {
		t.Fatalf("expected tail kept within capacity, got %q", got)
	}
}

func TestRingSink_Lines_SplitsCompleteRecords(t *testing.T) {
	rb := NewRingSink(1024)
	rb.Write([]byte("line one\nline two\nline three\n"))

	lines := rb.Lines()
	want := []string{"line one", "line two", "line three"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i, l := range want {
		if lines[i] != l {
			t.Errorf("line %d: expected %q, got %q", i, l, lines[i])
		}
	}
}

func TestRingSink_Reset_ClearsBuffer(t *testing.T) {
	rb := NewRingSink(1024)
	rb.Write([]byte("something\n"))
	rb.Reset()
	if lines := rb.Lines(); len(lines) != 0 {
		t.Fatalf("expected no lines after reset, got %v", lines)
	}
}

func TestStyledLogger_GetLogsCapturesWrittenRecords(t *testing.T) {
	sl := NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
	sl.Info("hello from the ring sink test")

	lines := sl.GetLogs()
	if len(lines) == 0 {
		t.Fatal("expected at least one buffered log line")
	}

	sl.ClearLogs()
	if lines := sl.GetLogs(); len(lines) != 0 {
		t.Fatalf("expected no buffered lines after ClearLogs, got %v", lines)
	}
}
