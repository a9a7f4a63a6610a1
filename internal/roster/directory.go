package roster

import (
	"context"
	"strings"
	"unicode/utf8"

	"staffbot/internal/apperr"
	"staffbot/internal/names"
)

// Field is a searchable directory column.
type Field string

const (
	FieldName       Field = "name"
	FieldPosition   Field = "position"
	FieldDepartment Field = "department"
)

// MinQueryRunes is the shortest accepted search query.
const MinQueryRunes = 2

var fieldHeaders = map[Field][]string{
	FieldName:       defaultColumns,
	FieldPosition:   {"должность", "position"},
	FieldDepartment: {"отдел", "подразделение", "department"},
}

var fieldTitles = map[Field]string{
	FieldName:       "ФИО",
	FieldPosition:   "Должность",
	FieldDepartment: "Отдел",
}

// Title is the column label shown to users.
func (f Field) Title() string { return fieldTitles[f] }

// ParseField accepts the English key or the Russian column label.
func ParseField(s string) (Field, bool) {
	switch names.Normalize(s) {
	case "name", "фио", "имя":
		return FieldName, true
	case "position", "должность":
		return FieldPosition, true
	case "department", "отдел":
		return FieldDepartment, true
	}
	return "", false
}

type Cell struct {
	Header string
	Value  string
}

// Employee is one directory row. Cells keep every non-empty column in file
// order.
type Employee struct {
	Name       string
	Position   string
	Department string
	Cells      []Cell
}

type SearchResult struct {
	Total     int
	Employees []Employee
}

// Search scans the file for rows whose field column contains query,
// ignoring case and the е/ё difference. At most limit rows are returned;
// Total counts all matches.
func (p *FileProvider) Search(ctx context.Context, field Field, query string, limit int) (SearchResult, error) {
	if _, ok := fieldHeaders[field]; !ok {
		return SearchResult{}, apperr.Validation("field", "Искать можно по ФИО, должности или отделу.")
	}
	q := names.Normalize(query)
	if utf8.RuneCountInString(q) < MinQueryRunes {
		return SearchResult{}, apperr.Validation("query", "Запрос должен содержать минимум 2 символа.")
	}
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}
	rows, err := p.readRows()
	if err != nil {
		return SearchResult{}, apperr.External("roster file", err)
	}
	if len(rows) == 0 {
		return SearchResult{}, nil
	}
	header := rows[0]
	cols := p.columns(header)
	idx, ok := cols[field]
	if !ok {
		return SearchResult{}, apperr.Validation("field", "В справочнике нет колонки «"+field.Title()+"».")
	}

	var res SearchResult
	for _, row := range rows[1:] {
		if idx >= len(row) || !strings.Contains(names.Normalize(row[idx]), q) {
			continue
		}
		res.Total++
		if limit > 0 && len(res.Employees) >= limit {
			continue
		}
		res.Employees = append(res.Employees, employee(header, row, cols))
	}
	return res, nil
}

// columns locates each field in header. The name column falls back to the
// first column when no header matches.
func (p *FileProvider) columns(header []string) map[Field]int {
	out := make(map[Field]int, len(fieldHeaders))
	name := findColumn(header, p.Column)
	if name < 0 {
		name = 0
	}
	out[FieldName] = name
	for _, f := range []Field{FieldPosition, FieldDepartment} {
		if i := findAny(header, fieldHeaders[f]); i >= 0 {
			out[f] = i
		}
	}
	return out
}

func findAny(header []string, wanted []string) int {
	for _, w := range wanted {
		for i, h := range header {
			if strings.Contains(names.Normalize(h), w) {
				return i
			}
		}
	}
	return -1
}

func employee(header, row []string, cols map[Field]int) Employee {
	cell := func(f Field) string {
		i, ok := cols[f]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	e := Employee{Name: cell(FieldName), Position: cell(FieldPosition), Department: cell(FieldDepartment)}
	for i, v := range row {
		v = strings.TrimSpace(v)
		if v == "" || i >= len(header) {
			continue
		}
		e.Cells = append(e.Cells, Cell{Header: strings.TrimSpace(header[i]), Value: v})
	}
	return e
}
