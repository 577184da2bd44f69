// Command devstub is a local stand-in for the Leafwise backend. It issues
// fake tokens, rotates them on refresh, and answers every analysis upload
// with a canned diagnosis, so the SDK and CLI can be exercised without the
// real service or its models.
package main

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

func main() {
	app := fiber.New()
	app.Use(logger.New())

	stub := newStub()
	app.Post("/api/v1/auth/firebase-login", stub.handleLogin)
	app.Post("/api/v1/auth/refresh", stub.handleRefresh)
	app.Post("/api/v1/auth/logout", stub.handleLogout)
	app.Post("/api/analyze/upload", stub.handleAnalyze)
	app.Post("/api/analyze/batch", stub.handleAnalyzeBatch)

	if err := app.Listen(":8000"); err != nil {
		log.Fatalf("app.Listen: %v", err)
	}
}

// stub tracks issued tokens so refresh rotation and revocation behave like
// the real service.
type stub struct {
	mu      sync.Mutex
	serial  int
	access  map[string]bool
	refresh map[string]bool
}

func newStub() *stub {
	return &stub{
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
	}
}

func (s *stub) issue() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial++
	access = fmt.Sprintf("access-%d", s.serial)
	refresh = fmt.Sprintf("refresh-%d", s.serial)
	s.access[access] = true
	s.refresh[refresh] = true
	return access, refresh
}

func (s *stub) authorized(c fiber.Ctx) bool {
	token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access[token]
}

func (s *stub) handleLogin(c fiber.Ctx) error {
	var input struct {
		FirebaseToken string `json:"firebase_token"`
		FullName      string `json:"full_name"`
	}
	if err := c.Bind().Body(&input); err != nil || input.FirebaseToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "invalid firebase token",
		})
	}

	name := input.FullName
	if name == "" {
		name = "Dev User"
	}
	access, refresh := s.issue()
	return c.JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"user": fiber.Map{
			"id":        "dev-user-1",
			"email":     "dev@leafwise.local",
			"full_name": name,
			"role":      "user",
			"is_active": true,
		},
	})
}

func (s *stub) handleRefresh(c fiber.Ctx) error {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid request body"})
	}

	s.mu.Lock()
	valid := s.refresh[input.RefreshToken]
	delete(s.refresh, input.RefreshToken)
	s.mu.Unlock()
	if !valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "refresh token expired"})
	}

	access, refresh := s.issue()
	return c.JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *stub) handleLogout(c fiber.Ctx) error {
	token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	s.mu.Lock()
	delete(s.access, token)
	s.mu.Unlock()
	return c.JSON(fiber.Map{"detail": "logged out"})
}

func (s *stub) handleAnalyze(c fiber.Ctx) error {
	if !s.authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "not authenticated"})
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": "file is required"})
	}
	return c.JSON(fiber.Map{"analysis": cannedAnalysis(file.Filename)})
}

func (s *stub) handleAnalyzeBatch(c fiber.Ctx) error {
	if !s.authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "not authenticated"})
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": "files are required"})
	}

	results := make([]fiber.Map, 0, len(form.File["files"]))
	for _, file := range form.File["files"] {
		results = append(results, fiber.Map{"analysis": cannedAnalysis(file.Filename)})
	}
	return c.JSON(fiber.Map{"results": results})
}

// cannedAnalysis mirrors the real service's wire shape. Filenames containing
// "healthy" or "notplant" steer the fake diagnosis so client paths can be
// exercised deliberately.
func cannedAnalysis(filename string) fiber.Map {
	lower := strings.ToLower(filename)

	if strings.Contains(lower, "notplant") {
		return fiber.Map{
			"is_plant":         false,
			"rejection_reason": "This does not appear to be a supported plant.",
			"validation_scores": fiber.Map{
				"plant": 0.08,
			},
		}
	}

	if strings.Contains(lower, "healthy") {
		return fiber.Map{
			"is_plant": true,
			"part_detection": fiber.Map{
				"part":       "leaf",
				"confidence": 0.97,
			},
			"disease_detection": fiber.Map{
				"disease":    "Healthy",
				"confidence": 0.93,
			},
			"recommendations": fiber.Map{
				"severity":    "healthy",
				"suggestions": []string{"No action needed. Keep monitoring weekly."},
			},
		}
	}

	return fiber.Map{
		"is_plant": true,
		"part_detection": fiber.Map{
			"part":       "leaf",
			"confidence": 0.95,
		},
		"disease_detection": fiber.Map{
			"disease":    "Early blight",
			"confidence": 0.87,
			"top_3": []fiber.Map{
				{"disease": "Early blight", "confidence": 0.87},
				{"disease": "Late blight", "confidence": 0.09},
				{"disease": "Septoria leaf spot", "confidence": 0.03},
			},
		},
		"spot_detection": fiber.Map{
			"total_spots": 4,
			"bounding_boxes": []fiber.Map{
				{"x": 120, "y": 88, "width": 42, "height": 36, "confidence": 0.91},
				{"x": 260, "y": 150, "width": 30, "height": 28, "confidence": 0.84},
				{"x": 90, "y": 210, "width": 25, "height": 22, "confidence": 0.77},
				{"x": 310, "y": 60, "width": 18, "height": 20, "confidence": 0.71},
			},
		},
		"recommendations": fiber.Map{
			"severity": "high",
			"suggestions": []string{
				"Remove and destroy affected leaves.",
				"Apply a copper-based fungicide at recommended intervals.",
				"Avoid overhead watering to keep foliage dry.",
			},
			"note": "Stub diagnosis for local development.",
		},
	}
}
