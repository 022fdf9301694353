package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/consensus"
)

type auditFixture struct {
	svc    *consensus.Service
	ledger *audit.Ledger
	mux    *http.ServeMux
}

func newAuditFixture(t *testing.T, store audit.Store) auditFixture {
	t.Helper()
	ledger, err := audit.NewLedger(context.Background(), store, zap.NewNop())
	require.NoError(t, err)

	svc := newTestService(t, consensus.WithAuditSink(ledger))
	mux := http.NewServeMux()
	NewDecisionHandler(svc, nil, nil).RegisterRoutes(mux)
	NewAuditHandler(ledger, nil).RegisterRoutes(mux)
	return auditFixture{svc: svc, ledger: ledger, mux: mux}
}

func (f auditFixture) decide(t *testing.T, body string) DecisionResponse {
	t.Helper()
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/decisions", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeData[DecisionResponse](t, decodeResponse(t, w))
}

func (f auditFixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

const rejectBody = `{
	"intent": {"id": "intent-2", "action": "delete"},
	"candidates": ["agent-a"],
	"votes": [
		{"voter": "v1", "type": "reject"},
		{"voter": "v2", "type": "reject"},
		{"voter": "v3", "type": "reject"}
	]
}`

func TestAuditHandler_ListGetHead(t *testing.T) {
	f := newAuditFixture(t, audit.NewMemoryStore())
	first := f.decide(t, approveBody)
	f.decide(t, rejectBody)

	w := f.get(t, "/api/v1/audit")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeData[[]audit.Entry](t, decodeResponse(t, w))
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, audit.GenesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)

	w = f.get(t, "/api/v1/audit?decision_type=reject")
	entries = decodeData[[]audit.Entry](t, decodeResponse(t, w))
	require.Len(t, entries, 1)
	assert.Equal(t, "intent-2", entries[0].IntentID)

	w = f.get(t, "/api/v1/audit?after_sequence=1&limit=5")
	entries = decodeData[[]audit.Entry](t, decodeResponse(t, w))
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Sequence)

	w = f.get(t, "/api/v1/audit/"+first.Decision.ID)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[AuditEntryResponse](t, decodeResponse(t, w))
	assert.Equal(t, first.Decision.ID, got.Entry.DecisionID)
	assert.Equal(t, first.Explanation.Reasoning, got.Explanation.Reasoning)

	w = f.get(t, "/api/v1/audit/head")
	head := decodeData[AuditHead](t, decodeResponse(t, w))
	seq, hash := f.ledger.Head()
	assert.Equal(t, AuditHead{Sequence: seq, Hash: hash}, head)
	assert.Equal(t, uint64(2), head.Sequence)
}

func TestAuditHandler_GetMissing(t *testing.T) {
	f := newAuditFixture(t, audit.NewMemoryStore())

	w := f.get(t, "/api/v1/audit/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditHandler_ListRejectsBadFilter(t *testing.T) {
	f := newAuditFixture(t, audit.NewMemoryStore())

	for _, q := range []string{
		"?decision_type=maybe",
		"?since=yesterday",
		"?after_sequence=-1",
		"?limit=abc",
	} {
		t.Run(q, func(t *testing.T) {
			w := f.get(t, "/api/v1/audit"+q)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuditHandler_Verify(t *testing.T) {
	f := newAuditFixture(t, audit.NewMemoryStore())
	f.decide(t, approveBody)
	f.decide(t, rejectBody)

	w := f.get(t, "/api/v1/audit/verify")
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeData[audit.VerifyReport](t, decodeResponse(t, w))
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Entries)
}

func TestAuditHandler_VerifyReportsBrokenChain(t *testing.T) {
	store := audit.NewMemoryStore()
	forged := audit.Entry{
		ID:         "forged",
		Sequence:   1,
		DecisionID: "d-forged",
		PrevHash:   audit.GenesisHash,
		Hash:       "not-a-real-hash",
		Payload:    "{}",
	}
	require.NoError(t, store.Append(context.Background(), forged))
	f := newAuditFixture(t, store)

	w := f.get(t, "/api/v1/audit/verify")
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeData[audit.VerifyReport](t, decodeResponse(t, w))
	assert.False(t, report.Valid)
	assert.Equal(t, uint64(1), report.BrokenAt)
	assert.NotEmpty(t, report.Reason)
}
