package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/r3hensler/base-client-server/internal/model"
	"github.com/r3hensler/base-client-server/internal/service"
)

type AuthHandler struct {
	svc     *service.AuthService
	limiter *service.RateLimiter
}

func NewAuthHandler(svc *service.AuthService, limiter *service.RateLimiter) *AuthHandler {
	return &AuthHandler{svc: svc, limiter: limiter}
}

// Register godoc
// @Summary Register a new user
// @Description Creates an account. No tokens are issued; log in afterwards.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Email and password"
// @Success 201 {object} model.UserResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 422 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.limiter.AllowRegister(c.Request.Context(), ClientIP(c)); err != nil {
		writeAuthError(c, err)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user.Response())
}

// Login godoc
// @Summary Login
// @Description Verifies credentials and sets the auth cookie pair.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Email and password"
// @Success 200 {object} model.UserResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := h.limiter.AllowLogin(c.Request.Context(), ClientIP(c), strings.ToLower(req.Email)); err != nil {
		writeAuthError(c, err)
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, user.Response())
}

// Refresh godoc
// @Summary Rotate the refresh token
// @Description Exchanges the refresh token cookie for a new cookie pair. The presented token is consumed.
// @Tags auth
// @Produce json
// @Success 200 {object} model.UserResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.Cookies().RefreshName)
	user, pair, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		// The cached credential state is dead either way; make the
		// client drop it so the next request forces a re-login.
		if errors.Is(err, service.ErrInvalidRefreshToken) || errors.Is(err, service.ErrExpiredRefreshToken) {
			h.clearAuthCookies(c)
		}
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, user.Response())
}

// Logout godoc
// @Summary Logout
// @Description Revokes the refresh token (if present) and clears both cookies. Always succeeds.
// @Tags auth
// @Produce json
// @Success 200 {object} model.MessageResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.Cookies().RefreshName)
	_ = h.svc.Logout(c.Request.Context(), refreshToken)
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, model.MessageResponse{Message: "Logged out"})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Success 200 {object} model.UserResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, user.Response())
}

func (h *AuthHandler) setAuthCookies(c *gin.Context, pair *service.TokenPair) {
	cfg := h.svc.Cookies()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.AccessName, pair.AccessToken, cfg.AccessMaxAge, "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(cfg.RefreshName, pair.RefreshToken, cfg.RefreshMaxAge, cfg.RefreshPath, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	cfg := h.svc.Cookies()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.AccessName, "", -1, "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(cfg.RefreshName, "", -1, cfg.RefreshPath, cfg.Domain, cfg.Secure, true)
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "Email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid credentials"})
	case errors.Is(err, service.ErrAccountDeactivated):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "Account is deactivated"})
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrExpiredRefreshToken):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid refresh token"})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Not authenticated"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{Error: "Too many requests"})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
	}
}
