package verify

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/installd/core/dto"
)

// Vote is an agent's answer to a verification request.
type Vote int

const (
	VoteReject Vote = -1
	VoteAllow  Vote = 1
	// VoteAllowWithoutSufficient lets the required agent pass the package
	// without waiting for any sufficient agent.
	VoteAllowWithoutSufficient Vote = 2
)

func (v Vote) String() string {
	switch v {
	case VoteReject:
		return "reject"
	case VoteAllow:
		return "allow"
	case VoteAllowWithoutSufficient:
		return "allow-without-sufficient"
	default:
		return "unknown"
	}
}

// ParseVote is the inverse of Vote.String.
func ParseVote(s string) (Vote, error) {
	for _, v := range []Vote{VoteReject, VoteAllow, VoteAllowWithoutSufficient} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, errors.Errorf("unknown vote %q", s)
}

// Result is where a verification stands.
type Result int

const (
	NotStarted Result = iota
	Pending
	Allowed
	Denied
	TimedOut
)

func (r Result) String() string {
	switch r {
	case NotStarted:
		return "not-started"
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Status is the install status a terminal result maps to.
func (r Result) Status() dto.Status {
	switch r {
	case Allowed:
		return dto.Succeeded
	case TimedOut:
		return dto.FailedVerificationTimeout
	default:
		return dto.FailedVerificationFailure
	}
}

// State tallies votes for one verification token. It is not safe for
// concurrent use; Engine serializes access.
type State struct {
	token       uint32
	requiredUID int
	sufficient  map[int]struct{}
	responses   map[int]Vote

	requiredResponded bool
	requiredAllowed   bool

	sufficientComplete bool
	sufficientPassed   bool

	timedOut bool
	done     bool
}

// NewState creates the tally for token with one required agent and the
// given sufficient agents.
func NewState(token uint32, requiredUID int, sufficientUIDs []int) *State {
	s := &State{
		token:       token,
		requiredUID: requiredUID,
		sufficient:  make(map[int]struct{}, len(sufficientUIDs)),
		responses:   make(map[int]Vote),
	}
	for _, uid := range sufficientUIDs {
		if uid == requiredUID {
			continue
		}
		s.sufficient[uid] = struct{}{}
	}
	return s
}

func (s *State) Token() uint32 {
	return s.token
}

// SetResponse records a vote. It reports false when the vote was not
// counted: the uid is not a participant, it already voted, or the state is
// already complete.
func (s *State) SetResponse(uid int, vote Vote) bool {
	if s.done {
		return false
	}
	if _, voted := s.responses[uid]; voted {
		return false
	}

	if uid == s.requiredUID {
		s.responses[uid] = vote
		s.requiredResponded = true
		switch vote {
		case VoteAllow:
			s.requiredAllowed = true
		case VoteAllowWithoutSufficient:
			s.requiredAllowed = true
			s.sufficient = map[int]struct{}{}
			s.sufficientComplete = false
		default:
			s.requiredAllowed = false
		}
		s.settle()
		return true
	}

	if _, ok := s.sufficient[uid]; ok {
		s.responses[uid] = vote
		if vote == VoteAllow || vote == VoteAllowWithoutSufficient {
			s.sufficientComplete = true
			s.sufficientPassed = true
		}
		delete(s.sufficient, uid)
		if len(s.sufficient) == 0 {
			s.sufficientComplete = true
		}
		s.settle()
		return true
	}

	return false
}

// Timeout marks the state as timed out unless it is already complete.
func (s *State) Timeout() bool {
	if s.done {
		return false
	}
	s.timedOut = true
	s.done = true
	return true
}

// settle completes the state on the first decisive vote: a required reject
// denies, any sufficient allow passes. A required allow completes it once the
// sufficient set is satisfied or exhausted.
func (s *State) settle() {
	switch {
	case s.requiredResponded && !s.requiredAllowed:
		s.done = true
	case s.sufficientPassed:
		s.done = true
	case s.requiredResponded && (len(s.sufficient) == 0 || s.sufficientComplete):
		s.done = true
	}
}

// IsComplete reports whether a terminal result has been reached.
func (s *State) IsComplete() bool {
	return s.done
}

// Result returns the current result.
func (s *State) Result() Result {
	switch {
	case s.timedOut:
		return TimedOut
	case !s.done:
		return Pending
	case s.requiredResponded && !s.requiredAllowed:
		return Denied
	case s.sufficientPassed:
		return Allowed
	case s.sufficientComplete:
		return Denied
	default:
		return Allowed
	}
}
