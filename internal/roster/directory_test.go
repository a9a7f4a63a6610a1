package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"staffbot/internal/apperr"
)

func writeDirectory(t *testing.T, body string) *FileProvider {
	t.Helper()
	p := filepath.Join(t.TempDir(), "staff.csv")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return &FileProvider{Path: p}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	p := writeDirectory(t, "ФИО,Должность,Отдел,Телефон\n"+
		"Иванов Иван Петрович,Инженер,IT,101\n"+
		"Сидорова Мария Ивановна,Бухгалтер,Финансы,\n"+
		"Пётр Смирнов,Старший инженер,IT,103\n")
	ctx := context.Background()

	cases := []struct {
		name      string
		field     Field
		query     string
		limit     int
		wantTotal int
		wantFirst string
	}{
		{"name substring", FieldName, "ИВАН", 10, 2, "Иванов Иван Петрович"},
		{"yo folds", FieldName, "петр", 10, 2, "Иванов Иван Петрович"},
		{"position", FieldPosition, "инженер", 10, 2, "Иванов Иван Петрович"},
		{"department capped", FieldDepartment, "it", 1, 2, "Иванов Иван Петрович"},
		{"nothing", FieldDepartment, "склад", 10, 0, ""},
	}
	for _, tc := range cases {
		res, err := p.Search(ctx, tc.field, tc.query, tc.limit)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Total != tc.wantTotal {
			t.Fatalf("%s: total=%d", tc.name, res.Total)
		}
		if tc.wantFirst != "" && res.Employees[0].Name != tc.wantFirst {
			t.Fatalf("%s: first=%+v", tc.name, res.Employees[0])
		}
		if tc.limit > 0 && len(res.Employees) > tc.limit {
			t.Fatalf("%s: %d rows over limit", tc.name, len(res.Employees))
		}
	}

	res, _ := p.Search(ctx, FieldPosition, "бухгалтер", 10)
	e := res.Employees[0]
	if e.Department != "Финансы" || len(e.Cells) != 3 || e.Cells[2].Header != "Отдел" {
		t.Fatalf("employee=%+v", e)
	}
}

func TestSearchRejects(t *testing.T) {
	t.Parallel()

	p := writeDirectory(t, "Сотрудник\nИванов Иван\n")
	ctx := context.Background()

	if _, err := p.Search(ctx, FieldName, " я ", 10); !apperr.IsValidation(err) {
		t.Fatalf("short query: %v", err)
	}
	if _, err := p.Search(ctx, FieldPosition, "инженер", 10); !apperr.IsValidation(err) {
		t.Fatalf("missing column: %v", err)
	}
	if _, err := p.Search(ctx, "phone", "101", 10); !apperr.IsValidation(err) {
		t.Fatalf("unknown field: %v", err)
	}
	res, err := p.Search(ctx, FieldName, "иванов", 10)
	if err != nil || res.Total != 1 {
		t.Fatalf("first column fallback: res=%+v err=%v", res, err)
	}
	missing := &FileProvider{Path: filepath.Join(t.TempDir(), "nope.csv")}
	if _, err := missing.Search(ctx, FieldName, "иванов", 10); !apperr.IsExternal(err) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestParseField(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Field{"ФИО": FieldName, "должность": FieldPosition, "Department": FieldDepartment} {
		if got, ok := ParseField(in); !ok || got != want {
			t.Fatalf("%q: %q %v", in, got, ok)
		}
	}
	if _, ok := ParseField("телефон"); ok {
		t.Fatal("unknown field parsed")
	}
}
