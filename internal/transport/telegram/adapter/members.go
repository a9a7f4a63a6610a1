package adapter

import (
	"context"

	tele "gopkg.in/telebot.v4"

	logx "staffbot/pkg/logx"
)

// BanMember removes userID from chatID and lifts the ban right away, so the
// user can file a new join request later. It reports false when the user was
// not a member.
func (a *Adapter) BanMember(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	chat := &tele.Chat{ID: chatID}
	user := &tele.User{ID: userID}

	member, err := a.bot.ChatMemberOf(chat, user)
	if err == nil && member != nil && (member.Role == tele.Left || member.Role == tele.Kicked) {
		return false, nil
	}
	if err := a.bot.Ban(chat, &tele.ChatMember{User: user}); err != nil {
		return false, err
	}
	if err := a.bot.Unban(chat, user, true); err != nil {
		a.log.Debug("unban after removal failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	return true, nil
}

func (a *Adapter) ApproveJoin(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.ApproveJoinRequest(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
}

func (a *Adapter) DeclineJoin(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.DeclineJoinRequest(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
}
