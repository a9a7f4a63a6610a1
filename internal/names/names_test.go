package names

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Иван Иванов", "иван иванов"},
		{"  ПЁТР   Сидоров ", "петр сидоров"},
		{"Ёлкин\tЁжик", "елкин ежик"},
		{"Ivan  Ivanov", "ivan ivanov"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q)=%q want %q", tc.in, got, tc.want)
		}
		if got := Normalize(Normalize(tc.in)); got != Normalize(tc.in) {
			t.Errorf("Normalize not idempotent for %q: %q", tc.in, got)
		}
	}
}

func TestEqualIgnoresCaseAndYo(t *testing.T) {
	t.Parallel()

	if !Equal("Фёдоров Пётр", "федоров  петр") {
		t.Fatalf("expected equal")
	}
	if Equal("Иванов", "Иванова") {
		t.Fatalf("expected different")
	}
}

func TestSet(t *testing.T) {
	t.Parallel()

	s := NewSet("Ivan Ivanov", "", "  ", "IVAN ivanov", "Анна Петрова")
	if s.Len() != 2 {
		t.Fatalf("len=%d want 2", s.Len())
	}
	if !s.Has("ivan   IVANOV") || !s.Has("анна петрова") || s.Has("Bob") {
		t.Fatalf("membership wrong: %v", s)
	}
}
