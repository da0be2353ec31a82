package server

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/high-horse/fingerprint-server/internal/template"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{Status: statusSuccess, Time: s.now().Format(time.RFC3339)})
}

func (s *Server) ready(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{Status: statusSuccess})
}

func (s *Server) verifyFingerprint(c *fiber.Ctx) error {
	start := time.Now()

	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Sample == "" {
		return fiber.NewError(fiber.StatusBadRequest, msgMissingData)
	}
	id := req.TemplateID
	if id == "" {
		id = template.DefaultID
	}
	if !template.ValidID(id) {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid template id %q", id))
	}

	sample, err := decodePayload(req.Sample)
	if err != nil {
		return prefixed("Invalid fingerprint sample data", err)
	}
	snap, err := s.template(c, id, req.Stored)
	if err != nil {
		return err
	}

	rid := requestID(c)
	outcome := s.verifier.VerifyBytes(verify.WithRequestID(c.UserContext(), rid), sample, snap.Data)
	resp := VerifyResponse{
		Status:          statusSuccess,
		Message:         msgCompleted,
		MatchResult:     outcome.Result,
		RequestID:       rid,
		TemplateID:      snap.ID,
		TemplateVersion: snap.Version,
		SubScores:       outcome.SubScores,
		Stats:           outcome.Stats,
		Elapsed:         time.Since(start).String(),
	}
	if outcome.Failed() {
		resp.Message = "Verification failed: " + outcome.Err.Error()
		resp.Failure = outcome.Kind().String()
		log.Printf("request %v: %v", c.Locals("requestid"), outcome.Err)
	}
	return c.JSON(resp)
}

// template saves stored as a new version of id, or loads the latest version
// when stored is empty.
func (s *Server) template(c *fiber.Ctx, id, stored string) (template.Snapshot, error) {
	if stored != "" {
		data, err := decodePayload(stored)
		if err != nil {
			return template.Snapshot{}, prefixed("Invalid stored fingerprint data", err)
		}
		snap, err := s.store.Put(c.UserContext(), id, data)
		if err != nil {
			return template.Snapshot{}, fmt.Errorf("save template %s: %w", id, err)
		}
		return snap, nil
	}

	snap, err := s.store.Latest(c.UserContext(), id)
	if errors.Is(err, template.ErrNotFound) {
		return template.Snapshot{}, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("No stored fingerprint for template %q", id))
	}
	if err != nil {
		return template.Snapshot{}, fmt.Errorf("load template %s: %w", id, err)
	}
	return snap, nil
}

func prefixed(msg string, err error) error {
	var e *fiber.Error
	if errors.As(err, &e) {
		return fiber.NewError(e.Code, msg+": "+e.Message)
	}
	return fiber.NewError(fiber.StatusBadRequest, msg+": "+err.Error())
}
