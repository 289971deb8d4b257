// session.go — серверные сессии dashboard.
// Cookie хранит только идентификатор сессии, соответствие id -> userId
// живёт в памяти процесса (expirable LRU) и теряется при рестарте.
package auth

import (
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Имена cookie сессии.
const (
	// SessionCookieName — идентификатор сессии, недоступен из JavaScript.
	SessionCookieName = "session"
	// HasSessionCookieName — признак сессии для фронтенда.
	HasSessionCookieName = "has_session"
)

// maxSessions — предел числа одновременных сессий в памяти.
const maxSessions = 10000

// SessionStore — хранилище сессий dashboard.
type SessionStore struct {
	sessions *expirable.LRU[string, int64]
	ttl      time.Duration
	secure   bool
	newID    func() string
}

// NewSessionStore создаёт хранилище сессий.
// newID генерирует идентификаторы сессий (криптослучайные).
func NewSessionStore(ttl time.Duration, secure bool, newID func() string) *SessionStore {
	return &SessionStore{
		sessions: expirable.NewLRU[string, int64](maxSessions, nil, ttl),
		ttl:      ttl,
		secure:   secure,
		newID:    newID,
	}
}

// Create создаёт сессию пользователя и выставляет cookie.
func (s *SessionStore) Create(w http.ResponseWriter, userID int64) string {
	id := s.newID()
	s.sessions.Add(id, userID)

	maxAge := int(s.ttl.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     HasSessionCookieName,
		Value:    "true",
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// UserID возвращает пользователя сессии из cookie запроса.
func (s *SessionStore) UserID(r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return 0, false
	}
	return s.sessions.Get(cookie.Value)
}

// Destroy удаляет сессию запроса (если есть) и очищает cookie.
func (s *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		s.sessions.Remove(cookie.Value)
	}

	for _, name := range []string{SessionCookieName, HasSessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == SessionCookieName,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Len возвращает количество активных сессий.
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}
