package auth

import (
	"net/http"
	"strings"

	"costume-rental/internal/api/apiutil"
	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/users"
	"costume-rental/internal/infra/security"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	users       *users.Service
	tokens      *security.TokenService
	revocations security.Revocations
	log         *logrus.Logger
}

func NewHandler(userSvc *users.Service, tokens *security.TokenService, revocations security.Revocations, log *logrus.Logger) *Handler {
	if revocations == nil {
		revocations = security.NopRevocations{}
	}
	return &Handler{users: userSvc, tokens: tokens, revocations: revocations, log: log}
}

// userWithTokens flattens the user and a fresh token pair into one object.
type userWithTokens struct {
	*users.User
	security.TokenPair
}

func (h *Handler) Register(c *gin.Context) {
	var input users.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apiutil.Error(c, apperr.Validation("Invalid request body"))
		return
	}

	user, err := h.users.Register(c.Request.Context(), input)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	h.log.WithField("user_id", user.ID).Info("user registered")
	c.JSON(http.StatusCreated, userWithTokens{User: user, TokenPair: pair})
}

func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		apiutil.Error(c, apperr.Validation("Invalid request body"))
		return
	}

	identifier := strings.TrimSpace(input.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(input.Username)
	}
	if identifier == "" || input.Password == "" {
		apiutil.Error(c, apperr.Validation("Email or username and password are required"))
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), identifier, input.Password)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"user":          user,
	})
}

// Refresh trades a refresh token for a new pair. The old refresh token is revoked.
func (h *Handler) Refresh(c *gin.Context) {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.RefreshToken == "" {
		apiutil.Error(c, apperr.Validation("refresh_token is required"))
		return
	}

	ctx := c.Request.Context()
	claims, err := h.tokens.Parse(input.RefreshToken, security.RefreshToken)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		apiutil.Error(c, apperr.ErrInvalidToken)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil || !user.IsActive {
		apiutil.Error(c, apperr.ErrInactiveUser)
		return
	}

	// claiming the jti is the revocation; a lost race means the token was already used
	claimed, err := h.revocations.Claim(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if !claimed {
		apiutil.Error(c, apperr.ErrInvalidToken.With("Refresh token has been revoked"))
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Me(c *gin.Context) {
	user := apiutil.CurrentUser(c)
	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, userWithTokens{User: user, TokenPair: pair})
}

// Logout revokes the refresh token when one is supplied. Without one it only acknowledges.
func (h *Handler) Logout(c *gin.Context) {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&input)

	if input.RefreshToken != "" {
		claims, err := h.tokens.Parse(input.RefreshToken, security.RefreshToken)
		if err != nil {
			apiutil.Error(c, err)
			return
		}
		if err := h.revocations.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			apiutil.Error(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
