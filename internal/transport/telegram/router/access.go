package router

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"staffbot/internal/storage"
)

// Level is what a user may do. Levels are ordered; a handler requiring
// LevelModerator is open to admins too.
type Level int

const (
	LevelGuest Level = iota
	LevelUser
	LevelReviewer
	LevelModerator
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelReviewer:
		return "reviewer"
	case LevelModerator:
		return "moderator"
	case LevelAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// LevelOf maps a stored user to an access level. Pending users are guests.
func LevelOf(u storage.User) Level {
	if u.Status != storage.UserAuthorized {
		return LevelGuest
	}
	switch u.Role {
	case storage.RoleAdmin:
		return LevelAdmin
	case storage.RoleModerator:
		return LevelModerator
	case storage.RoleMarketer:
		return LevelReviewer
	default:
		return LevelUser
	}
}

type LevelResolver interface {
	Level(ctx context.Context, userID int64) (Level, error)
}

type UserGetter interface {
	GetUser(ctx context.Context, id int64) (storage.User, error)
}

// Roles resolves levels from the store with a short cache. The configured
// admin id is always LevelAdmin.
type Roles struct {
	src     UserGetter
	cache   *gocache.Cache
	adminID atomic.Int64
}

func NewRoles(src UserGetter, adminID int64, ttl time.Duration) *Roles {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r := &Roles{src: src, cache: gocache.New(ttl, 2*ttl)}
	r.adminID.Store(adminID)
	return r
}

func (r *Roles) SetAdmin(id int64) { r.adminID.Store(id) }

func (r *Roles) AdminID() int64 { return r.adminID.Load() }

func (r *Roles) Level(ctx context.Context, userID int64) (Level, error) {
	if userID != 0 && userID == r.adminID.Load() {
		return LevelAdmin, nil
	}
	key := strconv.FormatInt(userID, 10)
	if v, ok := r.cache.Get(key); ok {
		return v.(Level), nil
	}
	u, err := r.src.GetUser(ctx, userID)
	lvl := LevelGuest
	switch {
	case err == nil:
		lvl = LevelOf(u)
	case !errors.Is(err, storage.ErrNotFound):
		return LevelGuest, err
	}
	r.cache.SetDefault(key, lvl)
	return lvl, nil
}

// Invalidate drops the cached level after a role or status change.
func (r *Roles) Invalidate(userID int64) {
	r.cache.Delete(strconv.FormatInt(userID, 10))
}

func deniedText(need Level) string {
	switch need {
	case LevelUser:
		return "🔒 Сначала пройдите авторизацию: /auth"
	case LevelAdmin:
		return "🔒 Команда доступна только администратору."
	default:
		return "🔒 Недостаточно прав для этой команды."
	}
}
