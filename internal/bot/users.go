package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"staffbot/internal/apperr"
	"staffbot/internal/storage"
	"staffbot/internal/transport/telegram/router"
	"staffbot/pkg/tgui"
)

const (
	usersScope    = "users"
	usersPageSize = 10
)

var roleOrder = []storage.Role{storage.RoleUser, storage.RoleModerator, storage.RoleMarketer, storage.RoleAdmin}

func (b *Bot) cmdUsers(ctx context.Context, req *router.Request) error {
	text, markup, err := b.usersPage(ctx, 0)
	if err != nil {
		return err
	}
	return req.Reply(ctx, text, markup)
}

func (b *Bot) cbUsersPage(ctx context.Context, req *router.Request) error {
	page, _ := strconv.Atoi(req.Callback.Arg(0))
	text, markup, err := b.usersPage(ctx, page)
	if err != nil {
		return err
	}
	return req.Edit(ctx, text, markup)
}

// usersPage renders one page of authorized users, one button per user.
func (b *Bot) usersPage(ctx context.Context, page int) (string, any, error) {
	all, err := b.store.ListUsers(ctx)
	if err != nil {
		return "", nil, err
	}
	users := all[:0:0]
	for _, u := range all {
		if u.Status == storage.UserAuthorized {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		return "Пользователей пока нет.", nil, nil
	}
	p := tgui.Paginate(users, page, usersPageSize)
	kb := tgui.NewInline()
	for _, u := range p.Items {
		label := fmt.Sprintf("%s · %s", tgui.TruncRunes(u.Name, 40), u.Role)
		kb.Row(tgui.Btn(label, tgui.Data(usersScope, "open", idKey(u.ID), strconv.Itoa(p.Index))))
	}
	if nav := p.Nav(usersScope, "page"); len(nav) > 0 {
		kb.Row(nav...)
	}
	return "👥 <b>Пользователи</b>\n" + p.Label(), kb.Markup(), nil
}

func (b *Bot) cbUserOpen(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	return b.showUser(ctx, req, id, req.Callback.Arg(1))
}

func (b *Bot) showUser(ctx context.Context, req *router.Request, id int64, page string) error {
	u, err := b.user(ctx, id)
	if err != nil {
		return err
	}
	lines := tgui.JoinH("\n",
		tgui.B("👤 "+u.Name),
		tgui.Raw("Должность: "+tgui.Esc(u.Position).String()),
		tgui.Raw("Роль: "+tgui.B(string(u.Role)).String()),
		tgui.Raw("ID: "+tgui.Code(idKey(u.ID)).String()),
	)
	if u.Username != "" {
		lines = tgui.JoinH("\n", lines, tgui.Esc("@"+u.Username))
	}

	key := idKey(u.ID)
	var roles []tele.Btn
	for _, r := range roleOrder {
		if r == u.Role {
			continue
		}
		roles = append(roles, tgui.Btn(string(r), tgui.Data(usersScope, "role", key, string(r), page)))
	}
	kb := tgui.NewInline().
		Row(roles...).
		Row(
			tgui.Btn("🗑 Удалить", tgui.Data(usersScope, "del", key, page)),
			tgui.Btn("⬅️ К списку", tgui.Data(usersScope, "page", pageArg(page))),
		)
	return req.Edit(ctx, lines.String(), kb.Markup())
}

func (b *Bot) cbUserRole(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	role := storage.Role(req.Callback.Arg(1))
	if err := b.auth.SetRole(ctx, req.FromID, id, role); err != nil {
		return err
	}
	b.invalidate(id)
	return b.showUser(ctx, req, id, req.Callback.Arg(2))
}

func (b *Bot) cbUserDelete(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	u, err := b.user(ctx, id)
	if err != nil {
		return err
	}
	page := req.Callback.Arg(1)
	return req.Edit(ctx, fmt.Sprintf("Удалить пользователя %s?", tgui.Esc(u.Name)), tgui.Confirm(
		tgui.Btn("🗑 Да, удалить", tgui.Data(usersScope, "delok", idKey(id), page)),
		tgui.Btn("Отмена", tgui.Data(usersScope, "open", idKey(id), page)),
	))
}

func (b *Bot) cbUserDeleteConfirm(ctx context.Context, req *router.Request) error {
	id, err := parseID(req.Callback.Arg(0))
	if err != nil {
		return err
	}
	if err := b.removeUser(ctx, req.FromID, id); err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.Callback.Arg(1))
	text, markup, err := b.usersPage(ctx, page)
	if err != nil {
		return err
	}
	return req.Edit(ctx, fmt.Sprintf("Пользователь %d удалён.\n\n%s", id, text), markup)
}

func (b *Bot) user(ctx context.Context, id int64) (storage.User, error) {
	u, err := b.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return u, apperr.NotFound("user", idKey(id))
	}
	return u, err
}

func pageArg(p string) string {
	if p == "" {
		return "0"
	}
	return p
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }
