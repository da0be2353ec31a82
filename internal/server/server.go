// Package server exposes verification over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/high-horse/fingerprint-server/internal/config"
	"github.com/high-horse/fingerprint-server/internal/template"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

// Verifier compares encoded sample and template images.
type Verifier interface {
	VerifyBytes(ctx context.Context, sample, template []byte) verify.Outcome
}

type Options struct {
	Config config.Server
	// LogOutput receives access logs; nil means stdout.
	LogOutput io.Writer
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	app      *fiber.App
	verifier Verifier
	store    template.Store
	now      func() time.Time
	shutdown time.Duration
}

func New(v Verifier, store template.Store, opts Options) *Server {
	s := &Server{verifier: v, store: store, now: time.Now, shutdown: opts.Config.ShutdownTimeout}

	bodyLimit := opts.Config.BodyLimit()
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "fingerprint-server",
		BodyLimit:             bodyLimit,
		Prefork:               opts.Config.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	origins := opts.Config.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	s.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${latency} ${method} ${path}\n",
		Output: out,
	}))
	s.app.Use(cors.New(cors.Config{AllowOrigins: origins}))

	s.app.Get("/", s.health)
	s.app.Get("/verify/fingerprint", s.ready)
	s.app.Post("/verify/fingerprint", s.verifyFingerprint)
	if opts.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", addr)
		errc <- s.app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Printf("server shutting down")
	timeout := s.shutdown
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		return err
	}
	return <-errc
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("request %v: %v", requestID(c), err)
	}
	return c.Status(code).JSON(ErrorResponse{
		Status:  statusError,
		Message: err.Error(),
	})
}

// requestID is the id the requestid middleware assigned, or a fresh one when
// the client sent an id unfit for use in snapshot keys.
func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && template.ValidID(id) {
		return id
	}
	id := uuid.NewString()
	c.Locals("requestid", id)
	return id
}
