package api

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/calimero-network/MeroSign/internal/blob"
)

const presignExpiry = 15 * time.Minute

func (s *Server) contentKey(c *fiber.Ctx) string {
	return fmt.Sprintf("contexts/%s/documents/%s", c.Params("id"), c.Params("doc"))
}

func (s *Server) requireBlobs(c *fiber.Ctx) error {
	if s.blobs == nil {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "no blob store configured")
	}
	return nil
}

// handlePutContent stores the raw request body and returns the reference and
// hash to pass to document upload or signing.
func (s *Server) handlePutContent(c *fiber.Ctx) error {
	if err := s.requireBlobs(c); err != nil {
		return err
	}
	body := c.Body()
	if len(body) == 0 {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "empty content")
	}
	hash, size, err := blob.HashContent(bytes.NewReader(body))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "hash content failed")
	}
	key := s.contentKey(c)
	_, err = s.blobs.Put(c.UserContext(), key, bytes.NewReader(body), blob.PutOptions{
		Size:        size,
		ContentType: c.Get(fiber.HeaderContentType),
	})
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"content_ref": key,
		"hash":        hash,
		"size":        size,
	})
}

func (s *Server) handleGetContent(c *fiber.Ctx) error {
	if err := s.requireBlobs(c); err != nil {
		return err
	}
	rc, info, err := s.blobs.Get(c.UserContext(), s.contentKey(c))
	if err != nil {
		return domainError(c, err)
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	return c.SendStream(rc, int(info.Size))
}

func (s *Server) handlePresignContent(c *fiber.Ctx) error {
	if err := s.requireBlobs(c); err != nil {
		return err
	}
	url, err := s.blobs.PresignGet(c.UserContext(), s.contentKey(c), presignExpiry)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}
