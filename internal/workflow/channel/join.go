package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staffbot/internal/apperr"
	"staffbot/internal/eventbus"
	"staffbot/internal/storage"
	"staffbot/internal/workflow/auth"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

type JoinOutcome int

const (
	// JoinAdmitted means the request was approved immediately.
	JoinAdmitted JoinOutcome = iota
	// JoinNeedName means the request is held until Register succeeds.
	JoinNeedName
)

// JoinRequest is an incoming request to join the channel.
type JoinRequest struct {
	UserID   int64
	Username string
}

// OnJoinRequest admits known subscribers and asks everyone else for their
// full name. The platform request stays open until Register decides it.
func (r *Reconciler) OnJoinRequest(ctx context.Context, req JoinRequest) (JoinOutcome, error) {
	sub, err := r.store.GetSubscriber(ctx, req.UserID)
	switch {
	case err == nil:
		if err := r.msg.ApproveJoin(ctx, req.UserID); err != nil {
			return JoinAdmitted, err
		}
		r.log.Info("known subscriber admitted", logx.Int64("user_id", req.UserID), logx.String("name", sub.Name))
		r.publish(eventbus.ChannelJoined, eventbus.Outcome{UserID: req.UserID, Result: "known"})
		return JoinAdmitted, nil
	case !errors.Is(err, storage.ErrNotFound):
		return JoinNeedName, err
	}

	text := "👋 Чтобы получить доступ к каналу новостей, отправьте ФИО полностью (Фамилия Имя Отчество), как в списке сотрудников."
	if err := r.msg.SendDirect(ctx, req.UserID, text, nil); err != nil {
		r.log.Warn("join prompt failed", logx.Int64("user_id", req.UserID), logx.Err(err))
		return JoinNeedName, err
	}
	return JoinNeedName, nil
}

// Register checks the name a join requester supplied and approves or
// declines the pending platform request. It is fail-closed: when the roster
// cannot be read the request is declined.
func (r *Reconciler) Register(ctx context.Context, req JoinRequest, name string) (storage.ChannelSubscriber, error) {
	name = strings.Join(strings.Fields(name), " ")
	if err := auth.ValidateName(name); err != nil {
		return storage.ChannelSubscriber{}, err
	}
	log := r.log.With(logx.Int64("user_id", req.UserID), logx.String("name", name))

	allowed, err := r.allowed(ctx)
	if err != nil {
		log.Error("join check: roster unavailable", logx.Err(err))
		r.decline(ctx, req, name, "список сотрудников недоступен")
		return storage.ChannelSubscriber{}, err
	}
	if !allowed.Has(name) {
		log.Info("join declined: not on roster")
		r.decline(ctx, req, name, "нет в списке сотрудников")
		return storage.ChannelSubscriber{}, apperr.Validation("name", "Вас нет в списке сотрудников. Доступ к каналу отклонён.")
	}
	if other, err := r.store.FindSubscriberByName(ctx, name); err == nil && other.UserID != req.UserID {
		log.Warn("join declined: name taken", logx.Int64("holder_id", other.UserID))
		r.decline(ctx, req, name, fmt.Sprintf("имя уже занято подписчиком %d", other.UserID))
		return storage.ChannelSubscriber{}, apperr.Conflict("subscriber", name, "taken")
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.ChannelSubscriber{}, err
	}

	sub := storage.ChannelSubscriber{UserID: req.UserID, Name: name, Username: req.Username, SubscribedAt: r.clk.Now()}
	if err := r.store.AddSubscriber(ctx, sub); err != nil {
		return storage.ChannelSubscriber{}, err
	}
	if err := r.msg.ApproveJoin(ctx, req.UserID); err != nil {
		log.Warn("join approve failed", logx.Err(err))
		return sub, err
	}
	log.Info("subscriber joined")
	r.publish(eventbus.ChannelJoined, eventbus.Outcome{UserID: req.UserID, Result: "ok"})
	r.tellAdmin(ctx, fmt.Sprintf("✅ Новый подписчик канала: %s", tgui.Mention(name, req.UserID)))
	if err := r.msg.SendDirect(ctx, req.UserID, "✅ Заявка одобрена, добро пожаловать в канал!", nil); err != nil {
		log.Debug("welcome failed", logx.Err(err))
	}
	return sub, nil
}

func (r *Reconciler) decline(ctx context.Context, req JoinRequest, name, reason string) {
	if err := r.msg.DeclineJoin(ctx, req.UserID); err != nil {
		r.log.Warn("join decline failed", logx.Int64("user_id", req.UserID), logx.Err(err))
	}
	r.publish(eventbus.ChannelJoined, eventbus.Outcome{UserID: req.UserID, Result: "declined"})
	r.tellAdmin(ctx, fmt.Sprintf("🚫 Заявка в канал отклонена: %s (%s)", tgui.Mention(name, req.UserID), tgui.Esc(reason)))
}
