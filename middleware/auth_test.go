package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func testApp() *fiber.App {
	app := fiber.New()
	app.Get("/captain", UserContextMiddleware(), RequireRole("captain"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/moderator", UserContextMiddleware(), RequireRole("moderator"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestUserContext_MissingUserID(t *testing.T) {
	app := testApp()
	req := httptest.NewRequest("GET", "/captain", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRequireRole_Allows(t *testing.T) {
	app := testApp()
	req := httptest.NewRequest("GET", "/captain", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "captain")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRequireRole_Rejects(t *testing.T) {
	app := testApp()
	req := httptest.NewRequest("GET", "/moderator", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "captain")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRequireRole_MultipleRoles(t *testing.T) {
	app := testApp()
	req := httptest.NewRequest("GET", "/moderator", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "captain, moderator")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
