package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/shifter/server/internal/middleware"
	"github.com/shifter/server/internal/models"
	"github.com/shifter/server/internal/routes"
	"github.com/shifter/server/internal/storage"
	"github.com/shifter/server/pkg/logger"
	"github.com/shifter/server/pkg/utils"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	store *memoryStore
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.FileUpload{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := newMemoryStore()

	authHandler := NewAuthHandler(db)
	filesHandler := NewFilesHandler(db, store)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.Timezone(time.UTC))
	app.Use(authMiddleware.SessionAuth)
	app.Use(middleware.EnsurePasswordReset())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post(routes.Login, authHandler.Login)
	app.Post(routes.Logout, authHandler.Logout)
	app.Get(routes.Logout, authHandler.LogoutNotAllowed)

	app.Get(routes.Settings, middleware.RequireAuth, authHandler.SettingsPage)
	app.Post(routes.Settings, middleware.RequireAuth, authHandler.ChangePassword)

	app.Get(routes.NewUser, middleware.RequireAuth, middleware.StaffOnly, authHandler.NewUserPage)
	app.Post(routes.NewUser, middleware.RequireAuth, middleware.StaffOnly, authHandler.CreateUser)

	app.Get(routes.Index, middleware.RequireAuth, filesHandler.List)
	app.Post(routes.Index, middleware.RequireAuth, filesHandler.Upload)

	app.Get(routes.Index+"/:hex", filesHandler.Get)
	app.Get(routes.Index+"/:hex/download", filesHandler.Download)
	app.Get(routes.Index+"/:hex/download-url", filesHandler.DownloadURL)

	return &testEnv{app: app, db: db, store: store}
}

// memoryStore is the blob collaborator for tests: a map guarded by a
// mutex, faithful to the Store contract including missing-object
// errors.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]memoryObject{}}
}

func (m *memoryStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *memoryStore) Download(_ context.Context, objectName string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectName]
	if !ok {
		return nil, storage.ObjectInfo{}, fmt.Errorf("object %q does not exist", objectName)
	}
	info := storage.ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (m *memoryStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	return nil
}

func (m *memoryStore) PresignedGetURL(_ context.Context, objectName string, _ time.Duration, _ string) (string, error) {
	return "memory://" + objectName, nil
}

func (m *memoryStore) has(objectName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectName]
	return ok
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, isStaff bool) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		IsStaff:      isStaff,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	return user
}

func createTestSession(t *testing.T, db *gorm.DB, user *models.User) string {
	t.Helper()

	session := &models.Session{
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed creating test session: %v", err)
	}

	token, err := utils.GenerateSessionToken(session.ID, user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed generating session token: %v", err)
	}

	return token
}

func createTestFile(t *testing.T, env *testEnv, owner *models.User, filename, content string, uploadedAt, expiresAt time.Time) *models.FileUpload {
	t.Helper()

	fileHex := newTestHex(t)
	objectName := fmt.Sprintf("uploads/%s/%s", fileHex, filename)
	err := env.store.Upload(context.Background(), objectName, bytes.NewReader([]byte(content)), int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("failed storing test blob: %v", err)
	}

	file := &models.FileUpload{
		Filename:    filename,
		MimeType:    "text/plain",
		Size:        int64(len(content)),
		UploadedAt:  uploadedAt.UTC(),
		ExpiresAt:   expiresAt.UTC(),
		FileHex:     fileHex,
		StoragePath: objectName,
	}
	if owner != nil {
		file.OwnerID = &owner.ID
	}
	if err := env.db.Create(file).Error; err != nil {
		t.Fatalf("failed creating test file record: %v", err)
	}

	return file
}

var testHexCounter int

func newTestHex(t *testing.T) string {
	t.Helper()
	testHexCounter++
	return fmt.Sprintf("%032x", testHexCounter)
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func performUploadRequest(t *testing.T, app *fiber.App, filename, content, expiresAt string, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed creating multipart file field: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("failed writing multipart content: %v", err)
		}
	}
	if expiresAt != "" {
		if err := writer.WriteField("expiresAt", expiresAt); err != nil {
			t.Fatalf("failed writing expiresAt field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}

	return performRequest(t, app, http.MethodPost, routes.Index, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected status 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
