// Package fixtures 提供决策测试用的意图、选票与规则样例。
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/recommender"
	"github.com/BaSui01/hido/types"
)

// FixedTime 固定时间基准
var FixedTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// Intent 返回一个计算领域的意图
func Intent(id, action string, priority types.IntentPriority) types.SemanticIntent {
	return types.SemanticIntent{
		ID:            id,
		Domain:        types.DomainCompute,
		Action:        action,
		Parameters:    map[string]any{},
		Priority:      priority,
		Sender:        "fixture",
		Created:       FixedTime,
		CorrelationID: id,
	}
}

// DeployIntent 普通优先级的部署意图
func DeployIntent() types.SemanticIntent {
	return Intent("intent-deploy", "deploy", types.PriorityNormal)
}

// PIIIntent 携带 contains_pii 参数的意图，会触发默认隐私规则
func PIIIntent() types.SemanticIntent {
	return Intent("intent-pii", "export", types.PriorityHigh).WithParam("contains_pii", true)
}

// Votes 按 voter-1..voter-n 顺序生成选票
func Votes(kinds ...consensus.VoteType) []consensus.Vote {
	votes := make([]consensus.Vote, len(kinds))
	for i, k := range kinds {
		votes[i] = consensus.Vote{
			Voter:     VoterID(i),
			Type:      k,
			Timestamp: FixedTime,
		}
	}
	return votes
}

// VoterID 第 i 个投票者的 ID
func VoterID(i int) string {
	return fmt.Sprintf("voter-%d", i+1)
}

// RegisterVoters 向服务注册 n 个权重为 1 的投票者
func RegisterVoters(svc *consensus.Service, n int) {
	for i := range n {
		svc.RegisterAgent(VoterID(i), 1)
	}
}

// MajorityApprove 三票中两票赞成
func MajorityApprove() []consensus.Vote {
	return Votes(consensus.VoteApprove, consensus.VoteApprove, consensus.VoteReject)
}

// DecideRequest 组合意图与选票
func DecideRequest(intent types.SemanticIntent, votes []consensus.Vote, candidates ...string) consensus.DecideRequest {
	return consensus.DecideRequest{Intent: intent, Candidates: candidates, Votes: votes}
}

// BlockingRule 对指定动作直接拒绝的规则
func BlockingRule(id, action string) consensus.GuardrailRule {
	rule := consensus.NewGuardrailRule(id, consensus.CategorySafety, consensus.ActionReject, "blocks "+action)
	rule.Severity = 9
	rule.Conditions = []consensus.Condition{
		consensus.NewCondition("action", consensus.OpEq, action),
	}
	return rule
}

// Prediction 以给定置信度推荐 agentID
func Prediction(agentID string, confidence float64) *recommender.Prediction {
	return &recommender.Prediction{
		AgentID:    agentID,
		Confidence: confidence,
	}
}
