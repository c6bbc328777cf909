// Package api exposes the engine's operations over HTTP.
//
// Handlers are thin: decode, delegate to the engine, map the domain error
// taxonomy onto status codes. All business rules live below this layer.
package api

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/blob"
	"github.com/calimero-network/MeroSign/internal/engine"
)

// Server wires the engine into a fiber application.
type Server struct {
	engine   *engine.Engine
	trail    audit.Reader
	blobs    blob.Store
	registry *prometheus.Registry
	app      *fiber.App
}

// NewServer builds the HTTP surface over an engine. trail may be nil when no
// audit reader is exposed; blobs may be nil when content routes are not
// wanted.
func NewServer(eng *engine.Engine, trail audit.Reader, blobs blob.Store) (*Server, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(eng.Collector()); err != nil {
		return nil, err
	}
	promMW, err := NewPrometheusMiddleware(registry)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})
	app.Use(RequestID())
	app.Use(promMW.Handler())

	s := &Server{engine: eng, trail: trail, blobs: blobs, registry: registry, app: app}
	s.registerRoutes()
	return s, nil
}

// App returns the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the listener fails.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) registerRoutes() {
	app := s.app

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/metrics", s.handleMetrics)

	// Shared contexts.
	app.Post("/contexts", s.handleCreateContext)
	app.Get("/contexts/:id", s.handleContextDetails)
	app.Post("/contexts/:id/join", s.handleJoinContext)
	app.Post("/contexts/:id/leave", s.handleLeaveContext)
	app.Post("/contexts/:id/participants", s.handleAddParticipant)
	app.Post("/contexts/:id/participants/register", s.handleRegisterParticipant)
	app.Delete("/contexts/:id/participants/:participant", s.handleRemoveParticipant)
	app.Get("/contexts/:id/participants/:participant/permission", s.handlePermissionOf)

	// Documents.
	app.Post("/contexts/:id/documents", s.handleUploadDocument)
	app.Get("/contexts/:id/documents", s.handleListDocuments)
	app.Get("/contexts/:id/documents/:doc", s.handleGetDocument)
	app.Delete("/contexts/:id/documents/:doc", s.handleDeleteDocument)
	app.Post("/contexts/:id/documents/:doc/consent", s.handleConsent)
	app.Get("/contexts/:id/documents/:doc/consent/:signer", s.handleHasConsent)
	app.Post("/contexts/:id/documents/:doc/sign", s.handleSign)
	app.Post("/contexts/:id/documents/:doc/search", s.handleSearch)

	// Document bytes. The signing core records only hashes and references;
	// the content itself moves through the blob store.
	app.Put("/contexts/:id/documents/:doc/content", s.handlePutContent)
	app.Get("/contexts/:id/documents/:doc/content", s.handleGetContent)
	app.Get("/contexts/:id/documents/:doc/content/url", s.handlePresignContent)

	// Agreements, voting and escrow.
	app.Post("/contexts/:id/agreements", s.handleCreateAgreement)
	app.Get("/contexts/:id/agreements", s.handleAgreementsFor)
	app.Get("/contexts/:id/agreements/:agreement", s.handleGetAgreement)
	app.Post("/contexts/:id/agreements/:agreement/participants", s.handleAddAgreementParticipant)
	app.Post("/contexts/:id/agreements/:agreement/fund", s.handleFund)
	app.Post("/contexts/:id/agreements/:agreement/cancel", s.handleCancel)
	app.Post("/contexts/:id/agreements/:agreement/refresh", s.handleRefresh)
	app.Get("/contexts/:id/agreements/:agreement/balance", s.handleBalance)
	app.Post("/contexts/:id/agreements/:agreement/milestones/:milestone/votes", s.handleVote)
	app.Get("/contexts/:id/agreements/:agreement/milestones/:milestone/votes", s.handleVotingStatus)
	app.Post("/contexts/:id/agreements/:agreement/milestones/:milestone/execute", s.handleExecute)

	// Private stores: memberships and signature assets.
	app.Get("/users/:owner/contexts", s.handleListJoined)
	app.Post("/users/:owner/signatures", s.handleCreateAsset)
	app.Get("/users/:owner/signatures", s.handleListAssets)
	app.Delete("/users/:owner/signatures/:asset", s.handleDeleteAsset)

	// Audit trail.
	app.Get("/contexts/:id/audit", s.handleAuditTrail)
}

// handleMetrics renders the registry in the Prometheus text format.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	mfs, err := s.registry.Gather()
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "metrics gather failed")
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "metrics encode failed")
		}
	}
	c.Set(fiber.HeaderContentType, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	return c.Send(buf.Bytes())
}
