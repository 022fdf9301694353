package consensus

import (
	"fmt"
	"sort"
	"time"
)

// VoteType 投票类型
type VoteType string

const (
	VoteApprove VoteType = "approve"
	VoteReject  VoteType = "reject"
	VoteAbstain VoteType = "abstain"
)

// Valid reports whether t is one of the three ballot types.
func (t VoteType) Valid() bool {
	switch t {
	case VoteApprove, VoteReject, VoteAbstain:
		return true
	}
	return false
}

// Vote 单个投票者的一张选票
type Vote struct {
	Voter         string    `json:"voter"`
	Type          VoteType  `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Justification string    `json:"justification,omitempty"`
	Signature     []byte    `json:"signature,omitempty"`
}

// NewVote 创建选票，时间戳取当前时间
func NewVote(voter string, voteType VoteType) Vote {
	return Vote{
		Voter:     voter,
		Type:      voteType,
		Timestamp: time.Now().UTC(),
	}
}

// WithJustification 附加投票理由
func (v Vote) WithJustification(justification string) Vote {
	v.Justification = justification
	return v
}

// SigningPayload 返回签名覆盖的字节：voter:timestamp_ms:type
func (v Vote) SigningPayload() []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", v.Voter, v.Timestamp.UnixMilli(), v.Type))
}

// Sign 使用外部身份层提供的签名函数对选票签名。
// 决策核心本身从不检查签名内容。
func (v Vote) Sign(signFn func([]byte) []byte) Vote {
	v.Signature = signFn(v.SigningPayload())
	return v
}

// VoterInfo 已注册投票者
type VoterInfo struct {
	ID         string  `json:"id"`
	Weight     float64 `json:"weight"`
	Reputation float64 `json:"reputation"`
}

// VotingConfig 投票配置。
// TimeoutSeconds 与 MaxRounds 仅供外部轮次协调层使用，Tally 不读取它们。
type VotingConfig struct {
	QuorumThreshold float64 `json:"quorum_threshold" yaml:"quorum_threshold"`
	TimeoutSeconds  int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	Weighted        bool    `json:"weighted" yaml:"weighted"`
	MaxRounds       int     `json:"max_rounds" yaml:"max_rounds"`
}

// DefaultVotingConfig 返回 2/3 法定人数、60 秒超时、非加权、最多 3 轮的默认配置
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{
		QuorumThreshold: 2.0 / 3.0,
		TimeoutSeconds:  60,
		Weighted:        false,
		MaxRounds:       3,
	}
}

// Validate 校验投票配置
func (c VotingConfig) Validate() error {
	if c.QuorumThreshold <= 0 || c.QuorumThreshold > 1 {
		return invalidConfig(fmt.Sprintf("quorum_threshold must be in (0,1], got %v", c.QuorumThreshold))
	}
	if c.TimeoutSeconds < 0 {
		return invalidConfig("timeout_seconds must not be negative")
	}
	if c.MaxRounds < 0 {
		return invalidConfig("max_rounds must not be negative")
	}
	return nil
}

// ConsensusResult 计票结果。Decision 为空表示没有结论。
type ConsensusResult struct {
	ConsensusReached bool     `json:"consensus_reached"`
	Decision         VoteType `json:"decision,omitempty"`
	ApproveVotes     int      `json:"approve_votes"`
	RejectVotes      int      `json:"reject_votes"`
	AbstainVotes     int      `json:"abstain_votes"`
	TotalVoters      int      `json:"total_voters"`
	Confidence       float64  `json:"confidence"`
	Round            int      `json:"round"`
}

// ByzantineTolerance 拜占庭容错报告，仅由投票者数量 n 推导
type ByzantineTolerance struct {
	TotalVoters        int  `json:"total_voters"`
	MaxFaultyTolerated int  `json:"max_faulty_tolerated"`
	HonestRequired     int  `json:"honest_required"`
	IsSecure           bool `json:"is_secure"`
}

// ToleranceFor 计算 n 个投票者的容错能力：f = ⌊(n−1)/3⌋
func ToleranceFor(n int) ByzantineTolerance {
	if n <= 0 {
		return ByzantineTolerance{}
	}
	f := (n - 1) / 3
	return ByzantineTolerance{
		TotalVoters:        n,
		MaxFaultyTolerated: f,
		HonestRequired:     n - f,
		IsSecure:           n >= 4,
	}
}

// ByzantineVoting 拜占庭容错投票。
// 单写者结构，不做内部同步。
type ByzantineVoting struct {
	voters   map[string]VoterInfo
	votes    map[string]Vote
	round    int
	proposal string
	active   bool
	config   VotingConfig
}

// NewByzantineVoting 创建投票实例
func NewByzantineVoting(config VotingConfig) *ByzantineVoting {
	return &ByzantineVoting{
		voters: make(map[string]VoterInfo),
		votes:  make(map[string]Vote),
		round:  1,
		config: config,
	}
}

// Config 返回投票配置
func (b *ByzantineVoting) Config() VotingConfig {
	return b.config
}

// RegisterVoter 注册或替换投票者，权重被截断到 [0,1]，信誉默认 1.0
func (b *ByzantineVoting) RegisterVoter(voterID string, weight float64) {
	b.voters[voterID] = VoterInfo{
		ID:         voterID,
		Weight:     clamp(weight, 0, 1),
		Reputation: 1.0,
	}
}

// UnregisterVoter 移除投票者，本轮已投出的选票保留
func (b *ByzantineVoting) UnregisterVoter(voterID string) bool {
	if _, ok := b.voters[voterID]; !ok {
		return false
	}
	delete(b.voters, voterID)
	return true
}

// StartVote 开始针对 proposalID 的新一轮投票
func (b *ByzantineVoting) StartVote(proposalID string) {
	b.votes = make(map[string]Vote)
	b.proposal = proposalID
	b.active = true
	b.round = 1
}

// CastVote 投票。同一投票者在本轮内以最后一张选票为准。
func (b *ByzantineVoting) CastVote(vote Vote) error {
	if _, ok := b.voters[vote.Voter]; !ok {
		return voterNotRegistered(vote.Voter)
	}
	if !b.active {
		return noActiveProposal()
	}
	b.votes[vote.Voter] = vote
	return nil
}

// Tally 计票，无副作用
func (b *ByzantineVoting) Tally() ConsensusResult {
	totalVoters := len(b.voters)
	if totalVoters == 0 {
		return ConsensusResult{Round: b.round}
	}

	var totalWeight float64
	for _, id := range b.sortedVoterIDs() {
		totalWeight += b.weightOf(id)
	}

	var approveWeight, rejectWeight float64
	var approves, rejects, abstains int
	for _, id := range b.sortedBallotIDs() {
		vote := b.votes[id]
		w := b.weightOf(id)
		switch vote.Type {
		case VoteApprove:
			approveWeight += w
			approves++
		case VoteReject:
			rejectWeight += w
			rejects++
		case VoteAbstain:
			abstains++
		}
	}

	result := ConsensusResult{
		ApproveVotes: approves,
		RejectVotes:  rejects,
		AbstainVotes: abstains,
		TotalVoters:  totalVoters,
		Round:        b.round,
	}

	var participation float64
	if totalWeight > 0 {
		participation = (approveWeight + rejectWeight) / totalWeight
	}

	switch {
	case participation < b.config.QuorumThreshold:
		result.Confidence = participation
	case approveWeight > rejectWeight:
		result.ConsensusReached = true
		result.Decision = VoteApprove
		result.Confidence = approveWeight / (approveWeight + rejectWeight)
	case rejectWeight > approveWeight:
		result.ConsensusReached = true
		result.Decision = VoteReject
		result.Confidence = rejectWeight / (approveWeight + rejectWeight)
	default:
		// 平票：不达成共识
		result.Confidence = 0.5
	}
	return result
}

// ByzantineTolerance 返回当前注册表的容错报告，不影响 Tally
func (b *ByzantineVoting) ByzantineTolerance() ByzantineTolerance {
	return ToleranceFor(len(b.voters))
}

// NextRound 清空选票并进入下一轮，保留注册表
func (b *ByzantineVoting) NextRound() {
	b.votes = make(map[string]Vote)
	b.round++
}

// CurrentRound 返回当前轮次
func (b *ByzantineVoting) CurrentRound() int {
	return b.round
}

// Proposal 返回当前提案 ID，未开始时返回 false
func (b *ByzantineVoting) Proposal() (string, bool) {
	return b.proposal, b.active
}

// VoteCount 本轮已投票数
func (b *ByzantineVoting) VoteCount() int {
	return len(b.votes)
}

// VoterCount 注册投票者数
func (b *ByzantineVoting) VoterCount() int {
	return len(b.voters)
}

// Voter 按 ID 查询投票者
func (b *ByzantineVoting) Voter(voterID string) (VoterInfo, bool) {
	v, ok := b.voters[voterID]
	return v, ok
}

// Voters 返回按 ID 排序的投票者副本
func (b *ByzantineVoting) Voters() []VoterInfo {
	out := make([]VoterInfo, 0, len(b.voters))
	for _, id := range b.sortedVoterIDs() {
		out = append(out, b.voters[id])
	}
	return out
}

// weightOf 非加权模式恒为 1.0；加权模式下已注销投票者按 1.0 计
func (b *ByzantineVoting) weightOf(voterID string) float64 {
	if !b.config.Weighted {
		return 1.0
	}
	if v, ok := b.voters[voterID]; ok {
		return v.Weight
	}
	return 1.0
}

func (b *ByzantineVoting) sortedVoterIDs() []string {
	ids := make([]string, 0, len(b.voters))
	for id := range b.voters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *ByzantineVoting) sortedBallotIDs() []string {
	ids := make([]string, 0, len(b.votes))
	for id := range b.votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
