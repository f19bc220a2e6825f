package middleware

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zero-olympiad/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

func signSession(t *testing.T, method jwt.SigningMethod, claims SessionClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func whoAmI(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"id": UserID(c), "roles": strings.Join(Roles(c), ","), "email": UserEmail(c), "staff": IsStaff(c)})
}

func call(t *testing.T, app *fiber.App, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/me", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestUserContextFromGatewayHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{GatewayEnforced: true}))
	app.Get("/me", whoAmI)

	status, body := call(t, app, map[string]string{
		"X-User-ID":    "u1",
		"X-User-Roles": "contestor, manager",
		"X-User-Email": "u1@example.com",
	})
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":"u1"`)
	assert.Contains(t, body, `"roles":"contestor,manager"`)
	assert.Contains(t, body, `"staff":true`)
}

func TestUserContextFromSessionToken(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{JWTSecret: testSecret}))
	app.Get("/me", whoAmI)

	token := signSession(t, jwt.SigningMethodHS256, SessionClaims{
		Email: "a@example.com",
		Role:  models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	status, body := call(t, app, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":"u2"`)
	assert.Contains(t, body, `"roles":"admin"`)

	status, _ = call(t, app, map[string]string{"X-Session-Token": token + "x"})
	assert.Equal(t, 401, status)

	status, body = call(t, app, nil)
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":""`)
}

func TestGatewayHeadersIgnoredWithoutGateway(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{JWTSecret: testSecret}))
	app.Get("/me", RequireRoles(models.RoleAdmin), whoAmI)

	forged := map[string]string{"X-User-ID": "anyone", "X-User-Roles": "admin"}
	status, _ := call(t, app, forged)
	assert.Equal(t, 401, status)

	token := signSession(t, jwt.SigningMethodHS256, SessionClaims{
		Role:             models.RoleContestor,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u4"},
	})
	forged["Authorization"] = "Bearer " + token
	status, _ = call(t, app, forged)
	assert.Equal(t, 403, status)

	open := fiber.New()
	open.Use(UserContextMiddleware(IdentityConfig{}))
	open.Get("/me", whoAmI)
	_, body := call(t, open, map[string]string{"X-User-ID": "anyone", "X-User-Roles": "admin"})
	assert.Contains(t, body, `"id":""`)
	assert.Contains(t, body, `"staff":false`)
}

func TestSessionTokenIgnoresAuthorizationBehindGateway(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{JWTSecret: testSecret, GatewayEnforced: true}))
	app.Get("/me", whoAmI)

	token := signSession(t, jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u3"}})

	_, body := call(t, app, map[string]string{"Authorization": "Bearer " + token})
	assert.Contains(t, body, `"id":""`)
	_, body = call(t, app, map[string]string{"X-Session-Token": token})
	assert.Contains(t, body, `"id":"u3"`)
}

func TestParseSessionToken(t *testing.T) {
	expired := signSession(t, jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	_, err := ParseSessionToken(expired, testSecret)
	assert.Error(t, err)

	noSubject := signSession(t, jwt.SigningMethodHS256, SessionClaims{Email: "x@example.com"})
	_, err = ParseSessionToken(noSubject, testSecret)
	assert.ErrorContains(t, err, "subject")

	wrongAlg := signSession(t, jwt.SigningMethodHS512, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	_, err = ParseSessionToken(wrongAlg, testSecret)
	assert.Error(t, err)

	ok := signSession(t, jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	claims, err := ParseSessionToken(ok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestRequireRoles(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{GatewayEnforced: true}))
	app.Get("/me", RequireRoles(models.RoleAdmin, models.RoleManager), whoAmI)

	status, _ := call(t, app, nil)
	assert.Equal(t, 401, status)
	status, _ = call(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "contestor"})
	assert.Equal(t, 403, status)
	status, _ = call(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "manager"})
	assert.Equal(t, 200, status)
}

func TestProfileRoleMiddleware(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Participant{}))
	require.NoError(t, db.Create(&models.Participant{ID: "boss", Name: "Boss", Role: models.RoleAdmin}).Error)
	require.NoError(t, db.Create(&models.Participant{ID: "banned", Name: "Banned", Role: models.RoleContestor, IsBlocked: true}).Error)

	app := fiber.New()
	app.Use(UserContextMiddleware(IdentityConfig{GatewayEnforced: true}), ProfileRoleMiddleware(db))
	app.Get("/me", RequireRoles(models.RoleAdmin), whoAmI)

	status, body := call(t, app, map[string]string{"X-User-ID": "boss"})
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"roles":"admin"`)

	status, _ = call(t, app, map[string]string{"X-User-ID": "banned", "X-User-Roles": "admin"})
	assert.Equal(t, 403, status)

	status, _ = call(t, app, map[string]string{"X-User-ID": "stranger"})
	assert.Equal(t, 403, status)
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("gw-token", "/"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/me", whoAmI)

	status, _ := call(t, app, nil)
	assert.Equal(t, 401, status)
	status, _ = call(t, app, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, 401, status)
	status, _ = call(t, app, map[string]string{"Authorization": "Bearer gw-token"})
	assert.Equal(t, 200, status)
	status, _ = call(t, app, map[string]string{"Authorization": "gw-token"})
	assert.Equal(t, 200, status)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	open := fiber.New()
	open.Use(GatewayAuthMiddleware(""))
	open.Get("/me", whoAmI)
	status, _ = call(t, open, nil)
	assert.Equal(t, 200, status)
}
