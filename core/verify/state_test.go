package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
)

func TestState_RequiredOnly(t *testing.T) {
	s := NewState(1, 100, nil)
	require.Equal(t, Pending, s.Result())

	require.False(t, s.SetResponse(555, VoteAllow), "strangers do not vote")
	require.True(t, s.SetResponse(100, VoteAllow))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())
}

func TestState_SufficientAllowDecidesBeforeRequired(t *testing.T) {
	s := NewState(1, 100, []int{200, 201})

	require.True(t, s.SetResponse(200, VoteAllow))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())

	// the required agent answers too late to change the decision
	require.False(t, s.SetResponse(100, VoteReject))
	require.Equal(t, Allowed, s.Result())
}

func TestState_RequiredRejectDecidesBeforeSufficient(t *testing.T) {
	s := NewState(1, 100, []int{200})

	require.True(t, s.SetResponse(100, VoteReject))
	require.True(t, s.IsComplete())
	require.Equal(t, Denied, s.Result())

	require.False(t, s.SetResponse(200, VoteAllow))
	require.Equal(t, Denied, s.Result())
}

func TestState_SufficientRejectsWaitForRequired(t *testing.T) {
	s := NewState(1, 100, []int{200})

	require.True(t, s.SetResponse(200, VoteReject))
	require.False(t, s.IsComplete())
	require.Equal(t, Pending, s.Result())

	require.True(t, s.SetResponse(100, VoteAllowWithoutSufficient))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())
}

func TestState_SufficientShortCircuit(t *testing.T) {
	s := NewState(1, 100, []int{200, 201, 202})

	require.True(t, s.SetResponse(100, VoteAllow))
	require.False(t, s.IsComplete())

	require.True(t, s.SetResponse(201, VoteAllow))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())

	// later votes do not reopen the decision
	require.False(t, s.SetResponse(200, VoteReject))
	require.Equal(t, Allowed, s.Result())
}

func TestState_AllSufficientReject(t *testing.T) {
	s := NewState(1, 100, []int{200, 201})

	require.True(t, s.SetResponse(200, VoteReject))
	require.True(t, s.SetResponse(100, VoteAllow))
	require.False(t, s.IsComplete())

	require.True(t, s.SetResponse(201, VoteReject))
	require.True(t, s.IsComplete())
	require.Equal(t, Denied, s.Result())
}

func TestState_AllowWithoutSufficient(t *testing.T) {
	s := NewState(1, 100, []int{200, 201})

	require.True(t, s.SetResponse(100, VoteAllowWithoutSufficient))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())
}

func TestState_TimeoutIsTerminal(t *testing.T) {
	s := NewState(1, 100, nil)

	require.True(t, s.Timeout())
	require.Equal(t, TimedOut, s.Result())
	require.False(t, s.SetResponse(100, VoteAllow))
	require.False(t, s.Timeout())
	require.Equal(t, TimedOut, s.Result())
}

func TestState_RequiredIsNotSufficient(t *testing.T) {
	s := NewState(1, 100, []int{100})
	require.True(t, s.SetResponse(100, VoteAllow))
	require.True(t, s.IsComplete())
	require.Equal(t, Allowed, s.Result())
}

func TestResult_Status(t *testing.T) {
	require.Equal(t, dto.Succeeded, Allowed.Status())
	require.Equal(t, dto.FailedVerificationFailure, Denied.Status())
	require.Equal(t, dto.FailedVerificationTimeout, TimedOut.Status())
}

func TestParseVote(t *testing.T) {
	for _, v := range []Vote{VoteReject, VoteAllow, VoteAllowWithoutSufficient} {
		got, err := ParseVote(v.String())
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := ParseVote("maybe")
	require.Error(t, err)
}
