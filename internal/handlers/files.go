package handlers

import (
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shifter/server/internal/middleware"
	"github.com/shifter/server/internal/models"
	"github.com/shifter/server/internal/storage"
	"github.com/shifter/server/pkg/logger"
	"github.com/shifter/server/pkg/utils"
)

const (
	downloadURLLifetime = 15 * time.Minute
	hexAllocAttempts    = 5
)

type FilesHandler struct {
	DB      *gorm.DB
	Storage storage.Store
}

func NewFilesHandler(db *gorm.DB, store storage.Store) *FilesHandler {
	return &FilesHandler{DB: db, Storage: store}
}

// fileResponse is the FileUpload record plus its timestamps rendered
// in the viewer's active timezone.
type fileResponse struct {
	models.FileUpload
	UploadedAtDisplay string `json:"uploadedAtDisplay"`
	ExpiresAtDisplay  string `json:"expiresAtDisplay"`
}

func renderFile(c *fiber.Ctx, file models.FileUpload) fileResponse {
	loc := middleware.GetLocation(c)
	return fileResponse{
		FileUpload:        file,
		UploadedAtDisplay: utils.FormatDisplayTime(file.UploadedAt, loc),
		ExpiresAtDisplay:  utils.FormatDisplayTime(file.ExpiresAt, loc),
	}
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	expiryRaw := strings.TrimSpace(c.FormValue("expiresAt"))
	if expiryRaw == "" {
		return utils.Error(c, fiber.StatusBadRequest, "expiresAt is required")
	}

	// Wall-clock input is interpreted in the request's active timezone
	// and stored as a canonical UTC instant.
	expiresAt, err := parseExpiry(expiryRaw, middleware.GetLocation(c))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid expiresAt")
	}

	uploadedAt := time.Now().UTC()
	if !expiresAt.After(uploadedAt) {
		return utils.Error(c, fiber.StatusBadRequest, "expiresAt must be in the future")
	}

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileHex, err := h.allocateFileHex()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed allocating file identifier")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	objectName := fmt.Sprintf("uploads/%s/%s", fileHex, filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	entry := models.FileUpload{
		OwnerID:     &currentUser.ID,
		Filename:    filename,
		MimeType:    contentType,
		Size:        fileHeader.Size,
		UploadedAt:  uploadedAt,
		ExpiresAt:   expiresAt.UTC(),
		FileHex:     fileHex,
		StoragePath: objectName,
	}

	if err := h.DB.Create(&entry).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), objectName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating file record")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_uploaded", map[string]interface{}{
		"file_hex":   entry.FileHex,
		"file_name":  filename,
		"file_size":  fileHeader.Size,
		"mime_type":  contentType,
		"expires_at": entry.ExpiresAt,
	})

	return utils.Success(c, fiber.StatusCreated, renderFile(c, entry))
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var files []models.FileUpload
	if err := h.DB.Where("owner_id = ?", currentUser.ID).
		Order("uploaded_at DESC").
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	responses := make([]fileResponse, 0, len(files))
	for _, file := range files {
		responses = append(responses, renderFile(c, file))
	}

	return utils.Success(c, fiber.StatusOK, responses)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	file, ok := h.liveUpload(c)
	if !ok {
		return nil
	}
	return utils.Success(c, fiber.StatusOK, renderFile(c, *file))
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	file, ok := h.liveUpload(c)
	if !ok {
		return nil
	}

	obj, info, err := h.Storage.Download(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = file.MimeType
	}

	logger.Info("file_downloaded", map[string]interface{}{
		"file_hex":  file.FileHex,
		"file_name": file.Filename,
		"file_size": file.Size,
		"ip":        c.IP(),
	})

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	return c.SendStream(obj, int(info.Size))
}

func (h *FilesHandler) DownloadURL(c *fiber.Ctx) error {
	file, ok := h.liveUpload(c)
	if !ok {
		return nil
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), file.StoragePath, downloadURLLifetime, file.Filename)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":       url,
		"expiresIn": int(downloadURLLifetime.Seconds()),
	})
}

// liveUpload resolves the :hex parameter to an unexpired upload. Both
// missing and expired files answer 404 with the same message, so an
// expired link leaks nothing about what it used to point at.
func (h *FilesHandler) liveUpload(c *fiber.Ctx) (*models.FileUpload, bool) {
	fileHex := strings.ToLower(strings.TrimSpace(c.Params("hex")))

	var file models.FileUpload
	if err := h.DB.First(&file, "file_hex = ?", fileHex).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			_ = utils.Error(c, fiber.StatusNotFound, "file not found")
			return nil, false
		}
		_ = utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
		return nil, false
	}

	if file.IsExpired(time.Now().UTC()) {
		logger.Info("expired_file_denied", map[string]interface{}{
			"file_hex":   file.FileHex,
			"expires_at": file.ExpiresAt,
			"ip":         c.IP(),
		})
		_ = utils.Error(c, fiber.StatusNotFound, "file not found")
		return nil, false
	}

	return &file, true
}

// allocateFileHex draws a 128-bit random identifier and retries on the
// astronomically unlikely collision. Concurrent allocators that pick
// the same value are serialized by the unique index at insert time.
func (h *FilesHandler) allocateFileHex() (string, error) {
	for attempt := 0; attempt < hexAllocAttempts; attempt++ {
		id := uuid.New()
		fileHex := hex.EncodeToString(id[:])

		var count int64
		if err := h.DB.Model(&models.FileUpload{}).
			Where("file_hex = ?", fileHex).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return fileHex, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique file identifier")
}

var expiryLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

func parseExpiry(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}
