package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:     PhaseSet,
				Kind:      KindRange,
				Path:      []string{"point", "x"},
				Structure: "Point",
				Detail:    "value 300 does not fit in i8",
			},
			contains: []string{"[set]", "range", "point.x", "Point", "300"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseGet,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[get]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindAllocation,
				Detail: "arena full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[call]", "allocation", "arena full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseSet,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseSet, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseGet, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseSet, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Error("errors.Is should match kind sentinel")
	}
	if errors.Is(err, ErrRange) {
		t.Error("errors.Is should not match other sentinel")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseSet, KindRange).
		Path("user", "age").
		Structure("User").
		Value(300).
		Cause(cause).
		Detail("expected %s, got %d", "u8", 300).
		Build()

	if err.Phase != PhaseSet {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseSet)
	}
	if err.Kind != KindRange {
		t.Errorf("Kind = %v, want %v", err.Kind, KindRange)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "age" {
		t.Errorf("Path = %v, want [user age]", err.Path)
	}
	if err.Structure != "User" {
		t.Errorf("Structure = %v, want User", err.Structure)
	}
	if err.Value != 300 {
		t.Errorf("Value = %v, want 300", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected u8, got 300" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Range", func(t *testing.T) {
		err := Range(PhaseSet, []string{"x"}, 256, 8, false)
		if err.Kind != KindRange {
			t.Errorf("Kind = %v, want %v", err.Kind, KindRange)
		}
		if !strings.Contains(err.Detail, "u8") {
			t.Errorf("Detail = %q, want width", err.Detail)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseSet, nil, "abc", "int")
		if err.Kind != KindTypeMismatch || !strings.Contains(err.Detail, "string") {
			t.Errorf("unexpected %v", err)
		}
	})

	t.Run("InactiveUnionMember", func(t *testing.T) {
		err := InactiveUnionMember("Shape", "circle", "square")
		if !errors.Is(err, ErrInactiveUnionMember) {
			t.Errorf("unexpected %v", err)
		}
	})

	t.Run("UnresolvedThunk", func(t *testing.T) {
		err := UnresolvedThunk("add", 7, nil)
		if err.Value != uint32(7) || !errors.Is(err, ErrUnresolvedThunk) {
			t.Errorf("unexpected %v", err)
		}
	})

	t.Run("WithPath", func(t *testing.T) {
		err := WithPath(Range(PhaseSet, []string{"x"}, 1, 1, true), "outer")
		var e *Error
		if !errors.As(err, &e) || strings.Join(e.Path, ".") != "outer.x" {
			t.Errorf("unexpected path %v", err)
		}
	})
}

func TestToken(t *testing.T) {
	tok := &Token{Name: "OutOfMemory", Set: "Alloc", Code: 3}
	other := &Token{Name: "OutOfMemory", Set: "Alloc", Code: 3}

	if !errors.Is(tok, ErrErrorToken) {
		t.Error("token should match ErrErrorToken")
	}
	if errors.Is(tok, ErrRange) {
		t.Error("token should not match ErrRange")
	}
	if errors.Is(tok, other) {
		t.Error("distinct tokens must not compare equal")
	}
	if tok.Error() != "Alloc.error.OutOfMemory" {
		t.Errorf("Error() = %q", tok.Error())
	}
}
