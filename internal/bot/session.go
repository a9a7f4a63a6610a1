package bot

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Dialog flows that take free-text input after a command or button.
const (
	flowAuthName     = "auth.name"
	flowAuthPosition = "auth.position"
	flowNews         = "news"
	flowNewsComment  = "news.comment"
	flowNewsEdit     = "news.edit"
	flowDuty         = "duty"
	flowJoin         = "join"
	flowNotify       = "notify"
	flowSearch       = "search"
)

type session struct {
	Flow       string
	Name       string
	Text       string
	Photos     []string
	ProposalID int64
}

// sessions keeps one in-progress dialog per user; abandoned dialogs expire.
type sessions struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func newSessions(ttl time.Duration) *sessions {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &sessions{cache: gocache.New(ttl, ttl)}
}

func key(userID int64) string { return strconv.FormatInt(userID, 10) }

func (s *sessions) get(userID int64) (session, bool) {
	v, ok := s.cache.Get(key(userID))
	if !ok {
		return session{}, false
	}
	return v.(session), true
}

func (s *sessions) set(userID int64, sess session) {
	s.cache.SetDefault(key(userID), sess)
}

// update applies fn to the current session under a lock, so photos of an
// album arriving on different workers are not lost.
func (s *sessions) update(userID int64, fn func(*session) bool) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.get(userID)
	if !ok {
		return session{}, false
	}
	if !fn(&cur) {
		return cur, true
	}
	s.set(userID, cur)
	return cur, true
}

func (s *sessions) clear(userID int64) { s.cache.Delete(key(userID)) }
