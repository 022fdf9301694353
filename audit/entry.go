package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/BaSui01/hido/consensus"
)

// GenesisHash 第一条记录的前驱哈希
var GenesisHash = strings.Repeat("0", 64)

// Entry 审计账本中的一条记录
type Entry struct {
	ID                    string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	Sequence              uint64    `json:"sequence" gorm:"uniqueIndex;not null" bson:"sequence"`
	DecisionID            string    `json:"decision_id" gorm:"uniqueIndex;size:36;not null" bson:"decision_id"`
	IntentID              string    `json:"intent_id" gorm:"index;size:128" bson:"intent_id"`
	SelectedAgent         string    `json:"selected_agent" gorm:"size:128" bson:"selected_agent"`
	DecisionType          string    `json:"decision_type" gorm:"index;size:16" bson:"decision_type"`
	Confidence            float64   `json:"confidence" bson:"confidence"`
	RequiresHumanApproval bool      `json:"requires_human_approval" gorm:"index" bson:"requires_human_approval"`
	Reasoning             string    `json:"reasoning" gorm:"type:text" bson:"reasoning"`
	Payload               string    `json:"payload" gorm:"type:text" bson:"payload"`
	PrevHash              string    `json:"prev_hash" gorm:"size:64;not null" bson:"prev_hash"`
	Hash                  string    `json:"hash" gorm:"size:64;not null" bson:"hash"`
	CreatedAt             time.Time `json:"created_at" gorm:"index" bson:"created_at"`
}

// TableName GORM 表名
func (Entry) TableName() string {
	return "audit_entries"
}

// hashInput 参与哈希的字段。时间以毫秒计，兼容各存储的时间精度。
type hashInput struct {
	Sequence              uint64  `json:"sequence"`
	DecisionID            string  `json:"decision_id"`
	IntentID              string  `json:"intent_id"`
	SelectedAgent         string  `json:"selected_agent"`
	DecisionType          string  `json:"decision_type"`
	Confidence            float64 `json:"confidence"`
	RequiresHumanApproval bool    `json:"requires_human_approval"`
	Reasoning             string  `json:"reasoning"`
	Payload               string  `json:"payload"`
	PrevHash              string  `json:"prev_hash"`
	CreatedAtMillis       int64   `json:"created_at_ms"`
}

// NewEntry 由决策解释构造一条尚未落盘的记录并计算哈希
func NewEntry(exp consensus.DecisionExplanation, seq uint64, prevHash string, now time.Time) (Entry, error) {
	payload, err := json.Marshal(exp)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal explanation: %w", err)
	}

	e := Entry{
		ID:                    uuid.New().String(),
		Sequence:              seq,
		DecisionID:            exp.Decision.ID,
		IntentID:              exp.IntentID,
		SelectedAgent:         exp.Decision.SelectedAgent,
		DecisionType:          string(exp.Decision.DecisionType),
		Confidence:            exp.Decision.Confidence,
		RequiresHumanApproval: exp.Decision.RequiresHumanApproval,
		Reasoning:             exp.Reasoning,
		Payload:               string(payload),
		PrevHash:              prevHash,
		CreatedAt:             now.UTC().Truncate(time.Millisecond),
	}
	if e.Hash, err = e.ComputeHash(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ComputeHash 计算规范化 JSON 的 SHA-256 十六进制摘要
func (e Entry) ComputeHash() (string, error) {
	raw, err := json.Marshal(hashInput{
		Sequence:              e.Sequence,
		DecisionID:            e.DecisionID,
		IntentID:              e.IntentID,
		SelectedAgent:         e.SelectedAgent,
		DecisionType:          e.DecisionType,
		Confidence:            e.Confidence,
		RequiresHumanApproval: e.RequiresHumanApproval,
		Reasoning:             e.Reasoning,
		Payload:               e.Payload,
		PrevHash:              e.PrevHash,
		CreatedAtMillis:       e.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal hash input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Explanation 解码记录中保存的完整决策解释
func (e Entry) Explanation() (consensus.DecisionExplanation, error) {
	var exp consensus.DecisionExplanation
	if err := json.Unmarshal([]byte(e.Payload), &exp); err != nil {
		return consensus.DecisionExplanation{}, fmt.Errorf("decode audit payload %s: %w", e.DecisionID, err)
	}
	return exp, nil
}
