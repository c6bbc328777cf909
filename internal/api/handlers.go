package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/model"
)

func parseMilestoneID(c *fiber.Ctx) (uint64, bool) {
	id, err := strconv.ParseUint(c.Params("milestone"), 10, 64)
	return id, err == nil
}

func (s *Server) handleCreateContext(c *fiber.Ctx) error {
	var req struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Owner string `json:"owner"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	created, err := s.engine.CreateContext(c.UserContext(), req.ID, req.Name, model.Identity(req.Owner))
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) handleContextDetails(c *fiber.Ctx) error {
	details, err := s.engine.ContextDetails(c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(details)
}

func (s *Server) handleJoinContext(c *fiber.Ctx) error {
	var req struct {
		Owner  string `json:"owner"`
		Shared string `json:"shared"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.JoinContext(c.UserContext(), model.Identity(req.Owner), c.Params("id"), model.Identity(req.Shared)); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleLeaveContext(c *fiber.Ctx) error {
	var req struct {
		Owner string `json:"owner"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.LeaveContext(c.UserContext(), model.Identity(req.Owner), c.Params("id")); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAddParticipant(c *fiber.Ctx) error {
	var req struct {
		Actor       string `json:"actor"`
		Participant string `json:"participant"`
		Permission  string `json:"permission"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	level, ok := model.ParsePermissionLevel(req.Permission)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "unknown permission level")
	}
	if err := s.engine.AddParticipant(c.UserContext(), c.Params("id"), model.Identity(req.Actor), model.Identity(req.Participant), level); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRegisterParticipant(c *fiber.Ctx) error {
	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.RegisterParticipant(c.UserContext(), c.Params("id"), model.Identity(req.Actor)); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRemoveParticipant(c *fiber.Ctx) error {
	actor := c.Query("actor")
	if actor == "" {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "actor query parameter required")
	}
	if err := s.engine.RemoveParticipant(c.UserContext(), c.Params("id"), model.Identity(actor), model.Identity(c.Params("participant"))); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePermissionOf(c *fiber.Ctx) error {
	level, err := s.engine.PermissionOf(c.Params("id"), model.Identity(c.Params("participant")))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"permission": level.String()})
}

func (s *Server) handleUploadDocument(c *fiber.Ctx) error {
	var req struct {
		ID         string `json:"id"`
		Actor      string `json:"actor"`
		Name       string `json:"name"`
		Hash       string `json:"hash"`
		ContentRef string `json:"content_ref"`
		Size       uint64 `json:"size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	doc, err := s.engine.UploadDocument(c.UserContext(), c.Params("id"), model.Identity(req.Actor), req.ID, req.Name, req.Hash, req.ContentRef, req.Size)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	docs, err := s.engine.ListDocuments(c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(docs)
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	doc, err := s.engine.Document(c.Params("id"), c.Params("doc"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(doc)
}

func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	actor := c.Query("actor")
	if actor == "" {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "actor query parameter required")
	}
	if err := s.engine.DeleteDocument(c.UserContext(), c.Params("id"), model.Identity(actor), c.Params("doc")); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleConsent(c *fiber.Ctx) error {
	var req struct {
		Signer string `json:"signer"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.RecordConsent(c.UserContext(), c.Params("id"), model.Identity(req.Signer), c.Params("doc")); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleHasConsent(c *fiber.Ctx) error {
	consented, err := s.engine.HasConsent(c.Params("id"), model.Identity(c.Params("signer")), c.Params("doc"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"consented": consented})
}

func (s *Server) handleSign(c *fiber.Ctx) error {
	var req struct {
		Signer     string `json:"signer"`
		Hash       string `json:"hash"`
		ContentRef string `json:"content_ref"`
		Size       uint64 `json:"size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	outcome, err := s.engine.Sign(c.UserContext(), c.Params("id"), model.Identity(req.Signer), c.Params("doc"), req.Hash, req.ContentRef, req.Size)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(outcome)
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req struct {
		Query []float32 `json:"query"`
		K     int       `json:"k"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	matches, err := s.engine.SearchDocument(c.Params("id"), c.Params("doc"), req.Query, req.K)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(matches)
}

func (s *Server) handleCreateAgreement(c *fiber.Ctx) error {
	var spec engine.AgreementSpec
	if err := c.BodyParser(&spec); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	a, err := s.engine.CreateAgreement(c.UserContext(), c.Params("id"), spec)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (s *Server) handleAgreementsFor(c *fiber.Ctx) error {
	party := c.Query("party")
	if party == "" {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "party query parameter required")
	}
	agreements, err := s.engine.AgreementsFor(c.Params("id"), model.Identity(party))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(agreements)
}

func (s *Server) handleGetAgreement(c *fiber.Ctx) error {
	a, err := s.engine.Agreement(c.Params("id"), c.Params("agreement"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(a)
}

func (s *Server) handleAddAgreementParticipant(c *fiber.Ctx) error {
	var req struct {
		Actor       string `json:"actor"`
		Participant string `json:"participant"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.AddAgreementParticipant(c.UserContext(), c.Params("id"), c.Params("agreement"), model.Identity(req.Actor), model.Identity(req.Participant)); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleFund(c *fiber.Ctx) error {
	var req struct {
		Actor  string `json:"actor"`
		Amount uint64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.FundAgreement(c.UserContext(), c.Params("id"), model.Identity(req.Actor), c.Params("agreement"), req.Amount); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	if err := s.engine.CancelAgreement(c.UserContext(), c.Params("id"), model.Identity(req.Actor), c.Params("agreement")); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	transitioned, err := s.engine.RefreshMilestones(c.UserContext(), c.Params("id"), c.Params("agreement"))
	if err != nil {
		return domainError(c, err)
	}
	if transitioned == nil {
		transitioned = []uint64{}
	}
	return c.JSON(fiber.Map{"transitioned": transitioned})
}

func (s *Server) handleBalance(c *fiber.Ctx) error {
	total, remaining, err := s.engine.Balance(c.Params("id"), c.Params("agreement"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"total_funding": total, "remaining_balance": remaining})
}

func (s *Server) handleVote(c *fiber.Ctx) error {
	milestoneID, ok := parseMilestoneID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed milestone id")
	}
	var req struct {
		Voter   string `json:"voter"`
		Approve bool   `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	res, err := s.engine.Vote(c.UserContext(), c.Params("id"), c.Params("agreement"), model.Identity(req.Voter), milestoneID, req.Approve)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleVotingStatus(c *fiber.Ctx) error {
	milestoneID, ok := parseMilestoneID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed milestone id")
	}
	res, err := s.engine.VotingStatus(c.Params("id"), c.Params("agreement"), milestoneID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleExecute(c *fiber.Ctx) error {
	milestoneID, ok := parseMilestoneID(c)
	if !ok {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed milestone id")
	}
	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	m, err := s.engine.ExecuteMilestone(c.UserContext(), c.Params("id"), c.Params("agreement"), model.Identity(req.Actor), milestoneID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(m)
}

func (s *Server) handleListJoined(c *fiber.Ctx) error {
	joined, err := s.engine.ListJoined(model.Identity(c.Params("owner")))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(joined)
}

func (s *Server) handleCreateAsset(c *fiber.Ctx) error {
	var req struct {
		Name       string `json:"name"`
		ContentRef string `json:"content_ref"`
		Size       uint64 `json:"size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed body")
	}
	id, err := s.engine.CreateSignatureAsset(c.UserContext(), model.Identity(c.Params("owner")), req.Name, req.ContentRef, req.Size)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *Server) handleListAssets(c *fiber.Ctx) error {
	assets, err := s.engine.ListSignatureAssets(model.Identity(c.Params("owner")))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(assets)
}

func (s *Server) handleDeleteAsset(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("asset"), 10, 64)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "malformed asset id")
	}
	if err := s.engine.DeleteSignatureAsset(c.UserContext(), model.Identity(c.Params("owner")), id); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAuditTrail(c *fiber.Ctx) error {
	if s.trail == nil {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "no audit reader configured")
	}
	limit := c.QueryInt("limit", 0)
	entries, err := s.trail.Entries(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(entries)
}
