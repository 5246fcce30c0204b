package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/RichardoC/chatsync/internal/db"
	"github.com/RichardoC/chatsync/internal/wire"
)

const userKey = "user"

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *Handler) issueToken(email string) (string, error) {
	now := h.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *Handler) parseToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.secret, nil
	}, jwt.WithTimeFunc(h.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token without subject")
	}
	return claims.Subject, nil
}

// Login handles POST /login/ with form fields username and password.
func (h *Handler) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")

	user, err := h.db.GetUserByEmail(c.Request.Context(), email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.internalError(c, "failed to get user", err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		detail(c, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}

	token, err := h.issueToken(user.Email)
	if err != nil {
		h.internalError(c, "failed to sign token", err)
		return
	}
	h.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	c.JSON(http.StatusOK, wire.Token{AccessToken: token, TokenType: "bearer"})
}

func (h *Handler) Register(c *gin.Context) {
	var req wire.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Msg: "Cuerpo inválido"}})
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	var problems []fieldError
	if req.Email == "" {
		problems = append(problems, fieldError{Loc: []string{"body", "email"}, Msg: "Email requerido"})
	}
	if req.Password == "" {
		problems = append(problems, fieldError{Loc: []string{"body", "password"}, Msg: "Contraseña requerida"})
	}
	if len(problems) > 0 {
		detail(c, http.StatusUnprocessableEntity, problems)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		h.internalError(c, "failed to hash password", err)
		return
	}
	user, err := h.db.CreateUser(c.Request.Context(), req.Email, hash)
	if errors.Is(err, db.ErrDuplicate) {
		detail(c, http.StatusBadRequest, "Email ya registrado")
		return
	}
	if err != nil {
		h.internalError(c, "failed to create user", err)
		return
	}

	h.logger.Info("user registered", zap.Int64("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "Usuario registrado exitosamente"})
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller in the context.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			unauthorized(c)
			return
		}

		email, err := h.parseToken(token)
		if err != nil {
			h.logger.Debug("rejected token", zap.Error(err))
			unauthorized(c)
			return
		}
		user, err := h.db.GetUserByEmail(c.Request.Context(), email)
		if errors.Is(err, db.ErrNotFound) {
			unauthorized(c)
			return
		}
		if err != nil {
			h.internalError(c, "failed to get user", err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *db.User {
	return c.MustGet(userKey).(*db.User)
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	detail(c, http.StatusUnauthorized, "No se pudieron validar las credenciales")
}

func defaultTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 2 * time.Hour
	}
	return ttl
}
