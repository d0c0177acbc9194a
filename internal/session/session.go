// Package session holds the viewer's access token and identity for the
// single scheduling session the engine serves.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when no usable access token is stored.
var ErrNoSession = errors.New("session: not authenticated")

// Role scopes which appointments the backend returns for the viewer.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Viewer identifies the logged-in user.
type Viewer struct {
	UserID int64
	Role   Role
}

// Session stores the access token issued by the authentication collaborator.
// Token validity is judged only by its exp claim; the signature is the
// backend's concern.
type Session struct {
	mu     sync.RWMutex
	token  string
	viewer Viewer
	now    func() time.Time
}

// New creates a session, optionally pre-populated with a token.
func New(token string, viewer Viewer) *Session {
	return &Session{token: strings.TrimSpace(token), viewer: viewer, now: time.Now}
}

// SetToken replaces the stored token (login or refresh). It reports whether
// the session changed hands, meaning the token differs and is not a refresh
// issued to the same viewer. A login after Clear counts as a change.
func (s *Session) SetToken(token string, viewer Viewer) bool {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.token != token && !sameHolder(s.viewer, viewer)
	s.token = token
	s.viewer = viewer
	return changed
}

// sameHolder treats two viewers as one person only when both carry a user id.
// Opaque tokens have no identity, so any switch between them counts as a change.
func sameHolder(a, b Viewer) bool {
	return a.UserID != 0 && a.UserID == b.UserID && a.Role == b.Role
}

// Clear drops the stored token (logout).
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.viewer = Viewer{}
}

// Viewer returns the identity bound to the session.
func (s *Session) Viewer() Viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// Authenticated reports whether a non-expired token is present.
func (s *Session) Authenticated() bool {
	_, err := s.Token(context.Background())
	return err == nil
}

// Token returns the bearer token, or ErrNoSession when it is missing or its
// exp claim has passed. Opaque (non-JWT) tokens are accepted as-is.
func (s *Session) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	now := s.now
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoSession
	}
	if expired(token, now()) {
		return "", ErrNoSession
	}
	return token, nil
}

func expired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// ViewerFromToken reads the viewer identity from a JWT's claims without
// verifying it. It looks at user_id (falling back to sub) and at role or
// is_doctor. Opaque tokens yield a patient with no id.
func ViewerFromToken(token string) Viewer {
	viewer := Viewer{Role: RolePatient}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return viewer
	}
	switch id := claims["user_id"].(type) {
	case float64:
		viewer.UserID = int64(id)
	case string:
		viewer.UserID, _ = strconv.ParseInt(id, 10, 64)
	}
	if viewer.UserID == 0 {
		if sub, err := claims.GetSubject(); err == nil {
			viewer.UserID, _ = strconv.ParseInt(sub, 10, 64)
		}
	}
	if role, ok := claims["role"].(string); ok && Role(strings.ToLower(role)) == RoleDoctor {
		viewer.Role = RoleDoctor
	}
	if isDoctor, ok := claims["is_doctor"].(bool); ok && isDoctor {
		viewer.Role = RoleDoctor
	}
	return viewer
}
