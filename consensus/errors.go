package consensus

import (
	"errors"

	"github.com/BaSui01/hido/types"
)

// 哨兵错误，可通过 errors.Is 判断
var (
	ErrVoterNotRegistered = errors.New("voter not registered")
	ErrNoActiveProposal   = errors.New("no active proposal")
	ErrInvalidConfig      = errors.New("invalid engine config")
)

func voterNotRegistered(voterID string) error {
	return types.NewError(types.ErrVoterNotRegistered, "voter "+voterID+" is not registered").
		WithCause(ErrVoterNotRegistered).
		WithHTTPStatus(409).
		WithComponent("consensus")
}

func noActiveProposal() error {
	return types.NewError(types.ErrNoActiveProposal, "start_vote has not been called").
		WithCause(ErrNoActiveProposal).
		WithHTTPStatus(409).
		WithComponent("consensus")
}

func invalidConfig(message string) error {
	return types.NewInvalidConfigError(message).
		WithCause(ErrInvalidConfig).
		WithComponent("consensus")
}
