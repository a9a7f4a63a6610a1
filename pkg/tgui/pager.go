package tgui

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// Page is one window over a list. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	From    int
	To      int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate cuts items into pages of size and returns page index, clamped
// to the last page so a shrinking list never yields an empty window.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if index >= pages {
		index = pages - 1
	}
	if index < 0 {
		index = 0
	}
	from := index * size
	to := min(from+size, total)
	return Page[T]{
		Items:   items[from:to],
		Index:   index,
		Pages:   pages,
		From:    from,
		To:      to,
		Total:   total,
		HasPrev: index > 0,
		HasNext: to < total,
	}
}

// Label is a compact position line such as "Страница 2/3 • 11–20 из 25".
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "Страница 1/1"
	}
	return fmt.Sprintf("Страница %d/%d • %d–%d из %d", p.Index+1, p.Pages, p.From+1, p.To, p.Total)
}

// Nav returns prev/next buttons carrying the target page as the last
// callback argument, or nil when the list fits one page.
func (p Page[T]) Nav(scope, action string) []tele.Btn {
	var row []tele.Btn
	if p.HasPrev {
		row = append(row, Btn("⬅️", Data(scope, action, strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		row = append(row, Btn("➡️", Data(scope, action, strconv.Itoa(p.Index+1))))
	}
	return row
}
