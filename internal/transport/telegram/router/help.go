package router

import (
	"html"
	"strings"
)

var levelTitles = []struct {
	lvl   Level
	title string
}{
	{LevelGuest, "Общие"},
	{LevelUser, "Сотрудникам"},
	{LevelReviewer, "Проверка новостей"},
	{LevelModerator, "Модераторам"},
	{LevelAdmin, "Администратору"},
}

// helpText lists the commands open to lvl, grouped by required level.
func (m *Manager) helpText(lvl Level) string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("📚 <b>Команды</b>")
	for _, g := range levelTitles {
		if g.lvl > lvl {
			break
		}
		var lines []string
		for _, c := range cmds {
			if c.Access != g.lvl {
				continue
			}
			line := "/" + c.Name
			if c.Usage != "" {
				line = html.EscapeString(c.Usage)
			}
			if c.Description != "" {
				line += " — " + html.EscapeString(c.Description)
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n\n<b>" + g.title + "</b>\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}
