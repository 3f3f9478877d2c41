package handlers

import (
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/shifter/server/internal/middleware"
	"github.com/shifter/server/internal/models"
	"github.com/shifter/server/internal/routes"
	"github.com/shifter/server/pkg/logger"
	"github.com/shifter/server/pkg/utils"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	// Unknown email and wrong password answer identically so the
	// endpoint cannot be used to enumerate accounts.
	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	session := models.Session{
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(utils.SessionLifetime()),
	}
	if err := h.DB.Create(&session).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating session")
	}

	token, err := utils.GenerateSessionToken(session.ID, user.ID, user.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	setSessionCookie(c, token, session.ExpiresAt)

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

// Logout only exists as a state-changing POST. An unauthenticated call
// bounces to login with a next parameter pointing back here.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	session := middleware.GetCurrentSession(c)
	if session == nil {
		return c.Redirect(routes.Login+"?next="+routes.Logout, fiber.StatusFound)
	}

	if err := h.DB.Delete(&models.Session{}, "id = ?", session.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed destroying session")
	}

	clearSessionCookie(c)

	logger.InfoWithUser(session.UserID.String(), "user_logout", map[string]interface{}{
		"session_id": session.ID.String(),
	})

	return c.Redirect(routes.Index, fiber.StatusFound)
}

// LogoutNotAllowed rejects read-method logout attempts so prefetchers
// and link-followers cannot end a session by accident.
func (h *AuthHandler) LogoutNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return utils.Error(c, fiber.StatusMethodNotAllowed, "method not allowed")
}

func (h *AuthHandler) SettingsPage(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":               user,
		"mustChangePassword": user.ChangePasswordOnLogin,
	})
}

type changePasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.NewPassword == "" {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword is required")
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.FormError(c, "Passwords do not match!")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	updates := map[string]interface{}{
		"password_hash":            hash,
		"change_password_on_login": false,
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	// Every live session dies with the old password; the client must
	// log in again with the new one.
	if err := h.DB.Delete(&models.Session{}, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed invalidating sessions")
	}

	clearSessionCookie(c)

	logger.InfoWithUser(user.ID.String(), "password_changed", map[string]interface{}{
		"forced_reset_cleared": user.ChangePasswordOnLogin,
	})

	return c.Redirect(routes.Index, fiber.StatusFound)
}

func (h *AuthHandler) NewUserPage(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, fiber.Map{})
}

type createUserRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// CreateUser is the staff-initiated creation path: the new account is
// always flagged to change its password on first login.
func (h *AuthHandler) CreateUser(c *fiber.Ctx) error {
	actor := middleware.GetCurrentUser(c)
	if actor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}
	if req.Password != req.ConfirmPassword {
		return utils.FormError(c, "Passwords do not match!")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.FormError(c, "Email already taken!")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := models.User{
		Email:                 req.Email,
		PasswordHash:          hash,
		ChangePasswordOnLogin: true,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		// A concurrent creation can slip past the pre-check; the unique
		// index serializes the two writers and the loser lands here.
		var conflict models.User
		if lookupErr := h.DB.First(&conflict, "email = ?", req.Email).Error; lookupErr == nil {
			return utils.FormError(c, "Email already taken!")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.InfoWithUser(actor.ID.String(), "user_created", map[string]interface{}{
		"new_user_id": user.ID.String(),
		"email":       user.Email,
	})

	return c.Redirect(routes.Index, fiber.StatusFound)
}

func setSessionCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}
