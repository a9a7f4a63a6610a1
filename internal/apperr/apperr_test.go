package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfThroughWrapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("plain"), KindUnknown},
		{Validation("fio", "too short"), KindValidation},
		{fmt.Errorf("submit: %w", NotFound("user", "7")), KindNotFound},
		{fmt.Errorf("approve: %w", Conflict("news", "3", "approved")), KindStateConflict},
		{External("roster", errors.New("timeout")), KindExternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v)=%v want %v", tc.err, got, tc.want)
		}
	}
}

func TestExternalUnwraps(t *testing.T) {
	t.Parallel()

	base := errors.New("dial tcp")
	err := fmt.Errorf("pass: %w", External("roster", base))
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to reach base")
	}
	if !IsExternal(err) {
		t.Fatalf("expected external kind")
	}
}

func TestValidationLineMessage(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Field: "date", Line: 3, Msg: "дата в прошлом"}
	if got := err.Error(); got != "Строка 3: дата в прошлом" {
		t.Fatalf("got %q", got)
	}
	if got := UserMessage(err); got != "❌ Строка 3: дата в прошлом" {
		t.Fatalf("user message %q", got)
	}
}

func TestUserMessageHidesInternals(t *testing.T) {
	t.Parallel()

	got := UserMessage(errors.New("sql: database is locked"))
	if got != "❌ Произошла ошибка, попробуйте позже." {
		t.Fatalf("leaked internals: %q", got)
	}
	if UserMessage(Conflict("auth", "1", "")) != "ℹ️ Это уже обработано." {
		t.Fatalf("conflict message wrong")
	}
}
