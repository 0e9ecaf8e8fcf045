package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ctxKeyUser    = "user"
	ctxKeySession = "session"
)

// Session is a database-backed login session. The cookie carries a random
// token; only its SHA-256 hash is stored.
type Session struct {
	ID         string    `gorm:"primaryKey;type:char(36)"`
	UserID     string    `gorm:"type:char(36);not null;index:ix_sessions_user_id"`
	TokenHash  []byte    `gorm:"type:binary(32);not null;uniqueIndex:ux_sessions_token_hash"`
	ExpiresAt  time.Time `gorm:"type:datetime(3);not null"`
	CreatedAt  time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt  time.Time `gorm:"type:datetime(3);not null"`
	LastSeenAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Session) TableName() string { return "sessions" }

type SessionCfg struct {
	DB         *gorm.DB
	CookieName string
	Secure     bool
	TTL        time.Duration
}

type Sessions struct {
	cfg SessionCfg
	now func() time.Time
}

func NewSessions(cfg SessionCfg) *Sessions {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	return &Sessions{cfg: cfg, now: time.Now}
}

// ContextUser is the authenticated user stored in the request context.
type ContextUser struct {
	ID    string
	Email string
	Role  string
}

// Middleware resolves the session cookie to a user. Unknown or expired
// tokens clear the cookie; the request continues anonymously.
func (s *Sessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(s.cfg.CookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		sess, u, err := s.lookup(c.Request.Context(), token)
		if err != nil {
			s.clearCookie(c)
			c.Next()
			return
		}

		c.Set(ctxKeySession, sess)
		c.Set(ctxKeyUser, u)
		c.Next()
	}
}

func (s *Sessions) lookup(ctx context.Context, token string) (*Session, ContextUser, error) {
	db := s.cfg.DB.WithContext(ctx)
	now := s.now()

	var sess Session
	if err := db.Where("token_hash = ? AND expires_at > ?", hashToken(token), now).First(&sess).Error; err != nil {
		return nil, ContextUser{}, err
	}

	var u ContextUser
	row := db.Table("users").Select("id", "email", "role").Where("id = ?", sess.UserID).Row()
	if err := row.Scan(&u.ID, &u.Email, &u.Role); err != nil {
		return nil, ContextUser{}, err
	}

	// touch at most once a minute
	if now.Sub(sess.LastSeenAt) > time.Minute {
		db.Model(&Session{}).Where("id = ?", sess.ID).UpdateColumn("last_seen_at", now)
	}
	return &sess, u, nil
}

// Start creates a session for userID and sets the cookie.
func (s *Sessions) Start(c *gin.Context, userID string) error {
	token, err := newSessionToken()
	if err != nil {
		return err
	}
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  hashToken(token),
		ExpiresAt:  now.Add(s.cfg.TTL),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.cfg.DB.WithContext(c.Request.Context()).Create(&sess).Error; err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, token, int(s.cfg.TTL.Seconds()), "/", "", s.cfg.Secure, true)
	return nil
}

// End deletes the current session, if any, and clears the cookie.
func (s *Sessions) End(c *gin.Context) error {
	defer s.clearCookie(c)
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return nil
	}
	sess, ok := v.(*Session)
	if !ok {
		return errors.New("session: unexpected context value")
	}
	return s.cfg.DB.WithContext(c.Request.Context()).Delete(&Session{}, "id = ?", sess.ID).Error
}

func (s *Sessions) clearCookie(c *gin.Context) {
	c.SetCookie(s.cfg.CookieName, "", -1, "/", "", s.cfg.Secure, true)
}

// CurrentUser returns the user resolved by Sessions.Middleware.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return ContextUser{}, false
	}
	u, ok := v.(ContextUser)
	if !ok || u.ID == "" {
		return ContextUser{}, false
	}
	return u, true
}

// SetCurrentUser is used by tests and trusted internal callers.
func SetCurrentUser(c *gin.Context, u ContextUser) {
	c.Set(ctxKeyUser, u)
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
