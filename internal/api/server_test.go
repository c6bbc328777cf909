package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/blob"
	"github.com/calimero-network/MeroSign/internal/clock"
	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/escrow"
	"github.com/calimero-network/MeroSign/internal/model"
)

func newTestServer(t *testing.T) (*Server, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	eng := engine.New(
		engine.WithClock(clock.NewManual(1000)),
		engine.WithAuditSink(sink),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTransfer(escrow.TransferFunc(func(context.Context, model.Identity, uint64) error {
			return nil
		})),
	)
	srv, err := NewServer(eng, sink, blob.NewMemoryStore())
	require.NoError(t, err)
	return srv, sink
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestServer_ContextLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeBody(t, resp, &created)
	assert.Equal(t, "ctx-1", created.ID)
	assert.Equal(t, "deal room", created.Name)

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/join", map[string]any{
		"owner": "alice-node", "shared": "alice",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/users/alice-node/contexts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var joined []struct {
		ContextID string `json:"context_id"`
	}
	decodeBody(t, resp, &joined)
	require.Len(t, joined, 1)
	assert.Equal(t, "ctx-1", joined[0].ContextID)

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/participants/alice/permission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var perm struct {
		Permission string `json:"permission"`
	}
	decodeBody(t, resp, &perm)
	assert.Equal(t, model.PermissionSign.String(), perm.Permission)
}

func TestServer_ErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "one", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown context", http.MethodGet, "/contexts/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"duplicate context", http.MethodPost, "/contexts", map[string]any{"id": "ctx-1", "name": "two", "owner": "admin"}, http.StatusConflict, "ALREADY_EXISTS"},
		{"missing owner", http.MethodPost, "/contexts", map[string]any{"id": "ctx-2", "name": "two"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown document", http.MethodGet, "/contexts/ctx-1/documents/ghost", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, srv, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			var payload struct {
				RequestID string `json:"request_id"`
				Error     struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			decodeBody(t, resp, &payload)
			assert.Equal(t, tc.code, payload.Error.Code)
			assert.NotEmpty(t, payload.RequestID)
		})
	}
}

func TestServer_SigningFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/documents", map[string]any{
		"id": "doc-1", "actor": "admin", "name": "nda.pdf",
		"hash": "h0", "content_ref": "blobs/doc-1", "size": 42,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Signing before consent is refused with 412.
	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/documents/doc-1/sign", map[string]any{
		"signer": "admin", "hash": "h1", "content_ref": "blobs/doc-1-admin", "size": 43,
	})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/documents/doc-1/consent", map[string]any{
		"signer": "admin",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/documents/doc-1/consent/admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var consent struct {
		Consented bool `json:"consented"`
	}
	decodeBody(t, resp, &consent)
	assert.True(t, consent.Consented)

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/documents/doc-1/sign", map[string]any{
		"signer": "admin", "hash": "h1", "content_ref": "blobs/doc-1-admin", "size": 43,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var outcome struct {
		Completed bool `json:"completed"`
	}
	decodeBody(t, resp, &outcome)
	assert.True(t, outcome.Completed, "admin was the only required signer")
}

func TestServer_AgreementFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/join", map[string]any{
		"owner": "alice-node", "shared": "alice",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements", map[string]any{
		"id":               "ag-1",
		"title":            "milestone deal",
		"creator":          "admin",
		"participants":     []string{"alice"},
		"voting_threshold": 60,
		"total_funding":    100,
		"milestones": []map[string]any{{
			"id":        1,
			"title":     "final payout",
			"condition": map[string]any{"kind": "manual_approval", "body": map[string]any{}},
			"recipient": "alice",
			"amount":    100,
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ag struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &ag)
	assert.Equal(t, "ag-1", ag.ID)

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements/ag-1/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		Transitioned []uint64 `json:"transitioned"`
	}
	decodeBody(t, resp, &refreshed)
	assert.Equal(t, []uint64{1}, refreshed.Transitioned)

	// Electorate is admin plus alice, threshold 60 needs both votes.
	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements/ag-1/milestones/1/votes", map[string]any{
		"voter": "admin", "approve": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements/ag-1/milestones/1/votes", map[string]any{
		"voter": "alice", "approve": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements/ag-1/milestones/1/execute", map[string]any{
		"actor": "admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/agreements/ag-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance struct {
		TotalFunding     uint64 `json:"total_funding"`
		RemainingBalance uint64 `json:"remaining_balance"`
	}
	decodeBody(t, resp, &balance)
	assert.Equal(t, uint64(100), balance.TotalFunding)
	assert.Zero(t, balance.RemainingBalance)

	// Executing the same milestone again conflicts.
	resp = doJSON(t, srv, http.MethodPost, "/contexts/ctx-1/agreements/ag-1/milestones/1/execute", map[string]any{
		"actor": "admin",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_AuditTrail(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []audit.Entry
	decodeBody(t, resp, &entries)
	require.NotEmpty(t, entries)
	assert.Equal(t, "context.create", entries[0].Action)
}

func TestServer_AuditTrail_NoReader(t *testing.T) {
	eng := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv, err := NewServer(eng, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/contexts/ctx-1/audit", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ContentRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	req := httptest.NewRequest(http.MethodPut, "/contexts/ctx-1/documents/doc-1/content", strings.NewReader("hello"))
	req.Header.Set(fiber.HeaderContentType, "application/pdf")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var put struct {
		ContentRef string `json:"content_ref"`
		Hash       string `json:"hash"`
		Size       int64  `json:"size"`
	}
	decodeBody(t, resp, &put)
	assert.Equal(t, "contexts/ctx-1/documents/doc-1", put.ContentRef)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", put.Hash)
	assert.Equal(t, int64(5), put.Size)

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/documents/doc-1/content", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "hello", string(raw))

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/documents/doc-1/content/url", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var presigned struct {
		URL string `json:"url"`
	}
	decodeBody(t, resp, &presigned)
	assert.Equal(t, "memory://contexts/ctx-1/documents/doc-1", presigned.URL)

	resp = doJSON(t, srv, http.MethodGet, "/contexts/ctx-1/documents/ghost/content", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/contexts", map[string]any{
		"id": "ctx-1", "name": "deal room", "owner": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	body := string(raw)
	assert.True(t, strings.Contains(body, "merosign_engine_operations_total"), "engine counter missing:\n%s", body)
	assert.True(t, strings.Contains(body, "http_requests_total"), "request counter missing:\n%s", body)
}
