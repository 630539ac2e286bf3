package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeSyntaxError, "unparsable file")
		if err.Error() != "[SYNTAX_ERROR] unparsable file" {
			t.Errorf("expected [SYNTAX_ERROR] unparsable file, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "rewrite failed")
		expected := "[INTERNAL_ERROR] rewrite failed: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeUnresolvedImport, "no such distribution")
		if !IsCode(err, CodeUnresolvedImport) {
			t.Error("expected IsCode to return true for CodeUnresolvedImport")
		}
		if IsCode(err, CodeSyntaxError) {
			t.Error("expected IsCode to return false for CodeSyntaxError")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeIncompletePackage, "init pruned")
		if !IsCode(err, CodeIncompletePackage) {
			t.Error("expected IsCode to return true for wrapped CodeIncompletePackage")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		var err error = New(CodeUnresolvedImport, "no such distribution")
		err = AddContext(err, CtxImport, "missing_pkg")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxImport] != "missing_pkg" {
			t.Errorf("expected context import=missing_pkg, got %v", de.Context)
		}
	})
}
