package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNilStaysNil(t *testing.T) {
	if err := NewOperationError("docstore.put", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestNewOperationErrorFormatsAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOperationError("docstore.put", "req-1", cause)

	if got, want := err.Error(), "docstore.put (request_id=req-1): connection refused"; got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable with errors.Is")
	}
	if op := OperationOf(err); op != "docstore.put" {
		t.Fatalf("unexpected operation: %s", op)
	}
}

func TestNewOperationErrorDoesNotDoubleWrapSameOperation(t *testing.T) {
	first := NewOperationError("docstore.list_all", "", errors.New("boom"))
	second := NewOperationError("docstore.list_all", "", first)
	if first != second {
		t.Fatalf("expected the same error back, got %v", second)
	}
	if got, want := second.Error(), "docstore.list_all: boom"; got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
}
