package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

// ErrInvalidSession is returned for cookies that fail to decode or verify
var ErrInvalidSession = errors.New("invalid session")

type payload struct {
	User      *entities.SessionUser `json:"user"`
	ExpiresAt int64                 `json:"exp,omitempty"`
}

// CookieProvider reads and writes the signed session cookie.
// Value layout: base64url(json) "." base64url(HMAC-SHA256(json)).
type CookieProvider struct {
	name   string
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

// NewCookieProvider creates a provider from session config
func NewCookieProvider(cfg *config.SessionConfig, secure bool) *CookieProvider {
	return &CookieProvider{
		name:   cfg.CookieName,
		secret: []byte(cfg.Secret),
		maxAge: cfg.MaxAge,
		secure: secure,
		now:    time.Now,
	}
}

var _ providers.SessionProvider = (*CookieProvider)(nil)

// Resolve returns the session user, nil when there is no cookie
func (p *CookieProvider) Resolve(r *http.Request) (*entities.SessionUser, error) {
	cookie, err := r.Cookie(p.name)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.Decode(cookie.Value)
}

// Issue writes a signed session cookie for user
func (p *CookieProvider) Issue(w http.ResponseWriter, user *entities.SessionUser) error {
	value, err := p.Encode(user)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(p.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Encode signs user into a cookie value
func (p *CookieProvider) Encode(user *entities.SessionUser) (string, error) {
	pl := payload{User: user}
	if p.maxAge > 0 {
		pl.ExpiresAt = p.now().Add(p.maxAge).Unix()
	}
	body, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(body) + "." + base64.RawURLEncoding.EncodeToString(p.sign(body)), nil
}

// Decode verifies and parses a cookie value
func (p *CookieProvider) Decode(value string) (*entities.SessionUser, error) {
	encBody, encSig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrInvalidSession
	}
	body, err := base64.RawURLEncoding.DecodeString(encBody)
	if err != nil {
		return nil, ErrInvalidSession
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if !hmac.Equal(sig, p.sign(body)) {
		return nil, ErrInvalidSession
	}

	var pl payload
	if err := json.Unmarshal(body, &pl); err != nil {
		return nil, ErrInvalidSession
	}
	if pl.User == nil || pl.User.ID == "" {
		return nil, ErrInvalidSession
	}
	if pl.ExpiresAt != 0 && p.now().Unix() >= pl.ExpiresAt {
		return nil, ErrInvalidSession
	}
	if pl.User.Role == "" {
		pl.User.Role = entities.RoleUser
	}
	return pl.User, nil
}

func (p *CookieProvider) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
