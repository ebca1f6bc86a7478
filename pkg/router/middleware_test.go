package router

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHttpCacheInMemory(t *testing.T) {
	app := fiber.New()
	app.Use(HttpCacheInMemory(60, func(c *fiber.Ctx) bool {
		return strings.Contains(c.Path(), "/session")
	}))

	var contactHits, sessionHits, postHits int32
	app.Get("/contacts", func(c *fiber.Ctx) error {
		atomic.AddInt32(&contactHits, 1)
		return c.SendString("ok")
	})
	app.Get("/session", func(c *fiber.Ctx) error {
		atomic.AddInt32(&sessionHits, 1)
		return c.SendString("ok")
	})
	app.Post("/messages", func(c *fiber.Ctx) error {
		atomic.AddInt32(&postHits, 1)
		return c.SendString("ok")
	})

	do := func(method, path string) {
		t.Helper()
		resp, err := app.Test(httptest.NewRequest(method, path, nil))
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		resp.Body.Close()
	}

	do(fiber.MethodGet, "/contacts")
	do(fiber.MethodGet, "/contacts")
	if got := atomic.LoadInt32(&contactHits); got != 1 {
		t.Fatalf("cacheable GET should hit handler once, got %d", got)
	}

	do(fiber.MethodGet, "/session")
	do(fiber.MethodGet, "/session")
	if got := atomic.LoadInt32(&sessionHits); got != 2 {
		t.Fatalf("skipped path must reach handler every time, got %d hits", got)
	}

	do(fiber.MethodPost, "/messages")
	do(fiber.MethodPost, "/messages")
	if got := atomic.LoadInt32(&postHits); got != 2 {
		t.Fatalf("non-GET must never be cached, got %d hits", got)
	}
}
