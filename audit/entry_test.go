package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/hido/consensus"
)

func TestNewEntry(t *testing.T) {
	exp := explanation("d1", consensus.VoteApprove, true)
	e, err := NewEntry(exp, 1, GenesisHash, baseTime.Add(1500*time.Microsecond))
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, uint64(1), e.Sequence)
	assert.Equal(t, "d1", e.DecisionID)
	assert.Equal(t, "intent-d1", e.IntentID)
	assert.Equal(t, "approve", e.DecisionType)
	assert.True(t, e.RequiresHumanApproval)
	assert.Equal(t, GenesisHash, e.PrevHash)
	assert.Len(t, e.Hash, 64)
	assert.Equal(t, baseTime.Add(time.Millisecond), e.CreatedAt)

	decoded, err := e.Explanation()
	require.NoError(t, err)
	assert.Equal(t, exp.Decision.ID, decoded.Decision.ID)
	assert.Equal(t, exp.Factors, decoded.Factors)
}

func TestComputeHash_Deterministic(t *testing.T) {
	e, err := NewEntry(explanation("d1", consensus.VoteApprove, false), 1, GenesisHash, baseTime)
	require.NoError(t, err)

	again, err := e.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, e.Hash, again)

	// ID 与本地时区不参与哈希
	moved := e
	moved.ID = "different"
	moved.CreatedAt = e.CreatedAt.In(time.FixedZone("UTC+8", 8*3600))
	h, err := moved.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, e.Hash, h)
}

func TestComputeHash_DetectsTampering(t *testing.T) {
	e, err := NewEntry(explanation("d1", consensus.VoteApprove, false), 1, GenesisHash, baseTime)
	require.NoError(t, err)

	mutations := map[string]func(*Entry){
		"sequence":   func(e *Entry) { e.Sequence = 2 },
		"type":       func(e *Entry) { e.DecisionType = "reject" },
		"confidence": func(e *Entry) { e.Confidence = 0.99 },
		"escalation": func(e *Entry) { e.RequiresHumanApproval = true },
		"reasoning":  func(e *Entry) { e.Reasoning += "." },
		"payload":    func(e *Entry) { e.Payload = "{}" },
		"prev":       func(e *Entry) { e.PrevHash = e.Hash },
		"time":       func(e *Entry) { e.CreatedAt = e.CreatedAt.Add(time.Millisecond) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tampered := e
			mutate(&tampered)
			h, err := tampered.ComputeHash()
			require.NoError(t, err)
			assert.NotEqual(t, e.Hash, h)
		})
	}
}

func TestEntry_ExplanationBadPayload(t *testing.T) {
	_, err := Entry{DecisionID: "x", Payload: "not json"}.Explanation()
	assert.Error(t, err)
}
