package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/repository"
)

// Handler exchanges credentials of a user entity for an access token.
type Handler struct {
	users  *repository.Repository
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewHandler(users *repository.Repository, cfg config.AuthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, cfg: cfg, logger: logger}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Login == "" || body.Password == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Login and password are required")
	}

	user, err := h.findUser(c, body.Login)
	if err != nil {
		return err
	}
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid login or password")
	}

	hash, _ := user[h.cfg.PasswordField].(string)
	if !CheckPassword(body.Password, hash) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid login or password")
	}

	pk := h.users.Entity().PrimaryKey.Field
	subject := fmt.Sprint(user[pk])
	token, err := GenerateAccessToken(subject, extractRoles(user["roles"]), h.cfg.JWTSecret, h.cfg.TokenTTL)
	if err != nil {
		return err
	}
	h.logger.Info("login", zap.String("subject", subject))

	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	}})
}

func (h *Handler) findUser(c *fiber.Ctx, login string) (map[string]any, error) {
	field := h.cfg.LoginField
	page, err := h.users.Index(c.UserContext(), repository.Params{
		Filters: &query.FilterSet{Mode: query.And, Params: []query.FilterParameter{
			{Field: field, Column: field, Operator: query.OpEquals, Args: []any{login}},
		}},
		Limit: 1,
	})
	var perr *repository.ParamsError
	if errors.As(err, &perr) {
		return nil, fmt.Errorf("login field %q: %w", field, err)
	}
	if err != nil {
		return nil, err
	}
	if len(page.Rows) == 0 {
		return nil, nil
	}
	return page.Rows[0], nil
}

// RegisterRoutes registers the login route.
func RegisterRoutes(app fiber.Router, h *Handler) {
	app.Post("/api/auth/login", h.Login)
}

func extractRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		var result []string
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				result = append(result, r)
			}
		}
		return result
	default:
		return []string{}
	}
}
