package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/droplet-predictor/internal/auth"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/pkg/database/queries"
	"github.com/OldStager01/droplet-predictor/pkg/validation"
)

// UserStore is implemented by queries.UserRepository.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*queries.User, error)
	Create(ctx context.Context, username, passwordHash string) (*queries.User, error)
}

// CookieSettings control the session cookie set on login.
type CookieSettings struct {
	Name     string
	Path     string
	Secure   bool
	HTTPOnly bool
}

type AuthHandler struct {
	users       UserStore
	authService *auth.Service
	cookie      CookieSettings
}

func NewAuthHandler(users UserStore, authService *auth.Service, cookie CookieSettings) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "auth_token"
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &AuthHandler{
		users:       users,
		authService: authService,
		cookie:      cookie,
	}
}

type CredentialsRequest struct {
	Username string `json:"username" binding:"required" example:"lab_user"`
	Password string `json:"password" binding:"required" example:"Str0ng!Pass"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in" example:"86400"`
	Username  string `json:"username" example:"lab_user"`
}

type RegisterResponse struct {
	ID       int    `json:"id" example:"1"`
	Username string `json:"username" example:"lab_user"`
}

// Register godoc
// @Summary Register
// @Description Create a user account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Credentials"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} map[string]string "Invalid username or password"
// @Failure 409 {object} map[string]string "Username taken"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.Username = validation.SanitizeString(req.Username)
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.users.Create(ctx, req.Username, hash)
	if err != nil {
		if errors.Is(err, queries.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		logger.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{ID: user.ID, Username: user.Username})
}

// Login godoc
// @Summary Login
// @Description Exchange credentials for a token, also set as an HTTP-only cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.users.GetByUsername(ctx, validation.SanitizeString(req.Username))
	if err != nil {
		if errors.Is(err, queries.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		logger.WithError(err).Error("Failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	maxAge := int(h.authService.TTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, token, maxAge, h.cookie.Path, "", h.cookie.Secure, h.cookie.HTTPOnly)

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: maxAge,
		Username:  user.Username,
	})
}

// Logout godoc
// @Summary Logout
// @Description Clear the session cookie
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, "", h.cookie.Secure, h.cookie.HTTPOnly)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
