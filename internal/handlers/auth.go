package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rosdash/internal/middleware"
)

// AuthHandlers serves login/logout for panels configured with an
// operator password.
type AuthHandlers struct {
	authService *middleware.AuthService
}

func NewAuthHandlers(authService *middleware.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

type LoginRequest struct {
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *AuthHandlers) LoginGET(c *gin.Context) {
	if !h.authService.Enabled() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if token, err := c.Cookie(middleware.CookieName); err == nil {
		if _, verr := h.authService.ValidateToken(token); verr == nil {
			c.Redirect(http.StatusFound, "/")
			return
		}
	}
	c.HTML(http.StatusOK, "login.html", gin.H{"title": "Sign in"})
}

func (h *AuthHandlers) LoginPOST(c *gin.Context) {
	if !h.authService.Enabled() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.HTML(http.StatusBadRequest, "login.html", gin.H{"title": "Sign in", "error": "Password is required"})
		return
	}
	if !h.authService.CheckPassword(c.ClientIP(), req.Password) {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"title": "Sign in", "error": "Incorrect password"})
		return
	}
	token, err := h.authService.GenerateToken("operator")
	if err != nil {
		c.HTML(http.StatusInternalServerError, "login.html", gin.H{"title": "Sign in", "error": "Unable to start session"})
		return
	}
	h.authService.SetSessionCookie(c, token)
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	h.authService.ClearSessionCookie(c)
	c.Redirect(http.StatusFound, "/login")
}

// APILogin authenticates script clients and returns the bearer token.
func (h *AuthHandlers) APILogin(c *gin.Context) {
	if !h.authService.Enabled() {
		c.JSON(http.StatusOK, gin.H{"token": "", "auth_disabled": true})
		return
	}
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if !h.authService.CheckPassword(c.ClientIP(), req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
		return
	}
	token, err := h.authService.GenerateToken("operator")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
