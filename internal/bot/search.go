package bot

import (
	"context"
	"fmt"
	"strings"

	"staffbot/internal/apperr"
	"staffbot/internal/roster"
	"staffbot/internal/transport/telegram/router"
	"staffbot/pkg/tgui"
)

const (
	searchScope = "search"
	searchLimit = 10
)

// Directory looks people up in the staff spreadsheet.
type Directory interface {
	Search(ctx context.Context, field roster.Field, query string, limit int) (roster.SearchResult, error)
}

// cmdSearch takes "/search [фио|должность|отдел] query" or, without
// arguments, asks for the column first.
func (b *Bot) cmdSearch(ctx context.Context, req *router.Request) error {
	if b.dir == nil {
		return req.Reply(ctx, "Справочник сотрудников не настроен.", nil)
	}
	if len(req.Args) == 0 {
		kb := tgui.NewInline().
			Row(
				tgui.Btn("👤 ФИО", tgui.Data(searchScope, string(roster.FieldName))),
				tgui.Btn("💼 Должность", tgui.Data(searchScope, string(roster.FieldPosition))),
				tgui.Btn("🏢 Отдел", tgui.Data(searchScope, string(roster.FieldDepartment))),
			).
			Row(tgui.Btn("Отмена", tgui.Data(dialogScope, "cancel")))
		return req.Reply(ctx, "🔍 По какой колонке искать?", kb.Markup())
	}
	field, query := roster.FieldName, strings.Join(req.Args, " ")
	if f, ok := roster.ParseField(req.Args[0]); ok && len(req.Args) > 1 {
		field, query = f, strings.Join(req.Args[1:], " ")
	}
	return b.search(ctx, req, field, query)
}

func (b *Bot) cbSearchField(ctx context.Context, req *router.Request) error {
	field := roster.Field(req.Callback.Action)
	b.dlg.set(req.FromID, session{Flow: flowSearch, Text: string(field)})
	return req.Edit(ctx, fmt.Sprintf("Введите запрос для поиска по колонке «%s»:", field.Title()), cancelMarkup())
}

func (b *Bot) searchInput(ctx context.Context, req *router.Request, sess session) error {
	err := b.search(ctx, req, roster.Field(sess.Text), req.Text)
	if !apperr.IsValidation(err) {
		b.dlg.clear(req.FromID)
	}
	return err
}

func (b *Bot) search(ctx context.Context, req *router.Request, field roster.Field, query string) error {
	if b.dir == nil {
		return req.Reply(ctx, "Справочник сотрудников не настроен.", nil)
	}
	res, err := b.dir.Search(ctx, field, query, searchLimit)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Поиск по колонке «%s»: %s\n📊 Найдено: %d", field.Title(), tgui.B(strings.TrimSpace(query)), res.Total)
	if res.Total == 0 {
		return req.Reply(ctx, sb.String(), nil)
	}
	if res.Total > len(res.Employees) {
		fmt.Fprintf(&sb, ", показаны первые %d", len(res.Employees))
	}
	for _, e := range res.Employees {
		sb.WriteString("\n\n" + employeeCard(e))
	}
	return req.Reply(ctx, sb.String(), nil)
}

func employeeCard(e roster.Employee) string {
	lines := make([]string, 0, len(e.Cells))
	for _, c := range e.Cells {
		lines = append(lines, fmt.Sprintf("%s: %s", tgui.B(c.Header), tgui.Esc(c.Value)))
	}
	return strings.Join(lines, "\n")
}
