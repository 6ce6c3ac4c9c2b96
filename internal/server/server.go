// Package server exposes the ICS feed and a manual sync trigger over HTTP.
package server

import (
	"bytes"
	"context"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Feed is satisfied by *icsfeed.Feed.
type Feed interface {
	Write(ctx context.Context, w io.Writer, window models.Window) (int, error)
}

// Trigger is satisfied by *scheduler.Scheduler.
type Trigger interface {
	Notify()
	Next(t time.Time) time.Time
}

type Options struct {
	WindowDays int
	Location   *time.Location
	Now        func() time.Time
	// AccessLog enables the request logger middleware.
	AccessLog bool
}

type Server struct {
	app     *fiber.App
	feed    Feed
	trigger Trigger
	opts    Options
}

func New(feed Feed, trigger Trigger, opts Options) *Server {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		feed:    feed,
		trigger: trigger,
		opts:    opts,
	}
	if opts.AccessLog {
		s.app.Use(logger.New())
	}
	s.app.Get("/healthz", s.health)
	s.app.Get("/calendar.ics", s.calendar)
	s.app.Post("/api/sync", s.sync)
	return s
}

// App returns the underlying router, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is done.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	log.Printf("HTTP server listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("Failed to handle %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) calendar(c *fiber.Ctx) error {
	days := c.QueryInt("days", s.opts.WindowDays)
	if days <= 0 || days > 366 {
		return fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 366")
	}
	window := models.NewWindow(models.Today(s.opts.Now(), s.opts.Location), days)

	var buf bytes.Buffer
	if _, err := s.feed.Write(c.UserContext(), &buf, window); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) sync(c *fiber.Ctx) error {
	s.trigger.Notify()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":  true,
		"next_run": s.trigger.Next(s.opts.Now()).Format(time.RFC3339),
	})
}
