package middleware

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenExpiry = 24 * time.Hour
	CookieName  = "auth_token"

	loginFailureLimit  = 5
	loginLockoutWindow = 10 * time.Minute
)

type Claims struct {
	Subject string `json:"subject"`
	jwt.RegisteredClaims
}

// AuthService guards the panel with a single operator password. When no
// password hash is configured the service is disabled and every request
// passes through; a diagnostics panel on a trusted robot network often
// runs open.
type AuthService struct {
	secret       []byte
	passwordHash string

	mu       sync.Mutex
	failures map[string]*loginFailure
}

type loginFailure struct {
	count        int
	lockoutUntil time.Time
}

// NewAuthService builds the service. An empty secret generates a
// per-process random one, which invalidates sessions across restarts but
// never ships a hardcoded key.
func NewAuthService(secret, passwordHash string) *AuthService {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// crypto/rand failing is unrecoverable for session signing.
			panic(fmt.Sprintf("auth: unable to generate session secret: %v", err))
		}
	}
	return &AuthService{
		secret:       key,
		passwordHash: passwordHash,
		failures:     make(map[string]*loginFailure),
	}
}

// Enabled reports whether a password is configured.
func (a *AuthService) Enabled() bool {
	return a.passwordHash != ""
}

func (a *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword verifies the operator password, rate-limited per client
// IP to slow brute forcing.
func (a *AuthService) CheckPassword(clientIP, password string) bool {
	a.mu.Lock()
	f := a.failures[clientIP]
	if f != nil && time.Now().Before(f.lockoutUntil) {
		a.mu.Unlock()
		return false
	}
	a.mu.Unlock()

	ok := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil

	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		delete(a.failures, clientIP)
		return true
	}
	if f == nil {
		f = &loginFailure{}
		a.failures[clientIP] = f
	}
	f.count++
	if f.count >= loginFailureLimit {
		f.lockoutUntil = time.Now().Add(loginLockoutWindow)
		f.count = 0
	}
	return false
}

func (a *AuthService) GenerateToken(subject string) (string, error) {
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// SetSessionCookie installs the auth cookie on the response.
func (a *AuthService) SetSessionCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TokenExpiry.Seconds()),
		HttpOnly: true,
		Secure:   cookieShouldBeSecure(c),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the auth cookie.
func (a *AuthService) ClearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookieShouldBeSecure(c),
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAuth gates web routes: unauthenticated browsers are redirected
// to the login page. A no-op when auth is disabled.
func (a *AuthService) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		token, err := c.Cookie(CookieName)
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// RequireAPIAuth gates JSON routes: unauthenticated requests get 401
// instead of a redirect.
func (a *AuthService) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		token, err := c.Cookie(CookieName)
		if err != nil {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// Helper to detect if current request is effectively HTTPS (behind proxy or direct)
func requestIsSecure(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); strings.EqualFold(proto, "https") {
		return true
	}
	return false
}

func cookieShouldBeSecure(c *gin.Context) bool {
	if strings.EqualFold(os.Getenv("ROSDASH_COOKIE_FORCE_SECURE"), "true") {
		return true
	}
	return requestIsSecure(c)
}
