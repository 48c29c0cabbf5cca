package message

import "testing"

func TestMemoryAppendAndSnapshotIsolation(t *testing.T) {
	m := NewMemory()
	m.Append(System("S"))
	m.Append(User("hi"))

	snap := m.Messages()
	snap[0].Content = "mutated"

	if got := m.Messages()[0].Content; got != "S" {
		t.Fatalf("Memory.Messages snapshot leaked mutation, got %q", got)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", m.Len())
	}
}

func TestMemoryValidateMatchesToolCallID(t *testing.T) {
	m := NewMemory()
	m.Append(User("hi"))
	m.Append(Assistant("", ToolCall{ID: "c1", FunctionName: "shell"}))
	m.Append(Tool("c1", "shell", "ok"))

	if err := m.Validate(); err != nil {
		t.Fatalf("expected valid memory, got %v", err)
	}
}

func TestMemoryValidateRejectsOrphanToolReply(t *testing.T) {
	m := NewMemory()
	m.Append(Tool("missing", "shell", "ok"))

	if err := m.Validate(); err == nil {
		t.Fatal("expected error for orphan tool reply")
	}
}

func TestMemoryReplaceShrinksHistory(t *testing.T) {
	m := NewMemory()
	m.AppendAll(System("S"), User("a"), User("b"), User("c"))
	m.Replace([]Message{System("S"), User("summary")})

	if m.Len() != 2 {
		t.Fatalf("expected 2 messages after replace, got %d", m.Len())
	}
}

func TestMemoryLastOnEmpty(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Last(); ok {
		t.Fatal("expected ok=false on empty memory")
	}
}
