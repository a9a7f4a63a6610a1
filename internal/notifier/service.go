package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"staffbot/internal/apperr"
	"staffbot/internal/eventbus"
	kit "staffbot/internal/transport"
	logx "staffbot/pkg/logx"
)

const historySize = 100

var ErrNoChannel = errors.New("notifier: channel id not configured")

// Service implements Messenger and AdminNotifier over a transport adapter.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	log     logx.Logger
	bus     eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

var (
	_ Messenger     = (*Service)(nil)
	_ AdminNotifier = (*Service)(nil)
)

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log.With(logx.String("comp", "notifier")), bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps limits and targets; safe during hot reload.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	s.mu.Lock()
	s.cfg = cfg
	// burst = rate so short spikes do not block
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) current() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// call waits for the limiter, applies the per-call timeout and maps failures.
func (s *Service) call(ctx context.Context, kind string, to int64, fn func(ctx context.Context) error) error {
	cfg, lim := s.current()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	err := fn(ctx)
	item := HistoryItem{At: time.Now(), Kind: kind, To: to}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("outbound call failed", logx.String("kind", kind), logx.Int64("to", to), logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.MessageFailed, Data: eventbus.Outcome{UserID: to, Result: kind}})
		}
		err = apperr.External("telegram", err)
	}
	s.appendHistory(item)
	return err
}

func (s *Service) SendDirect(ctx context.Context, userID int64, text string, markup any) error {
	return s.call(ctx, "direct", userID, func(ctx context.Context) error {
		_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, &kit.SendOptions{
			ParseMode:          tele.ModeHTML,
			DisablePreview:     true,
			ReplyMarkupAdapter: markup,
		})
		return err
	})
}

func (s *Service) SendChannel(ctx context.Context, text string, photoIDs []string) error {
	cfg, _ := s.current()
	if cfg.ChannelID == 0 {
		return apperr.External("telegram", ErrNoChannel)
	}
	to := kit.ChatTarget{ChatID: cfg.ChannelID}
	opt := &kit.SendOptions{ParseMode: tele.ModeHTML}
	return s.call(ctx, "channel", cfg.ChannelID, func(ctx context.Context) error {
		if len(photoIDs) > 0 {
			_, err := s.adapter.SendAlbum(ctx, to, text, photoIDs, opt)
			return err
		}
		_, err := s.adapter.SendText(ctx, to, text, opt)
		return err
	})
}

func (s *Service) RemoveFromChannel(ctx context.Context, userID int64) (bool, error) {
	cfg, _ := s.current()
	if cfg.ChannelID == 0 {
		return false, apperr.External("telegram", ErrNoChannel)
	}
	var removed bool
	err := s.call(ctx, "remove", userID, func(ctx context.Context) error {
		var err error
		removed, err = s.adapter.BanMember(ctx, cfg.ChannelID, userID)
		return err
	})
	return removed, err
}

func (s *Service) ApproveJoin(ctx context.Context, userID int64) error {
	cfg, _ := s.current()
	return s.call(ctx, "join.approve", userID, func(ctx context.Context) error {
		return s.adapter.ApproveJoin(ctx, cfg.ChannelID, userID)
	})
}

func (s *Service) DeclineJoin(ctx context.Context, userID int64) error {
	cfg, _ := s.current()
	return s.call(ctx, "join.decline", userID, func(ctx context.Context) error {
		return s.adapter.DeclineJoin(ctx, cfg.ChannelID, userID)
	})
}

func (s *Service) NotifyAdmin(ctx context.Context, text string, markup any) error {
	cfg, _ := s.current()
	if cfg.AdminID == 0 {
		s.log.Warn("admin notification dropped: admin id not configured")
		return nil
	}
	return s.SendDirect(ctx, cfg.AdminID, text, markup)
}

// History returns recent outbound calls, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
