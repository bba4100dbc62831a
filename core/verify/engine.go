// Package verify runs the verification quorum: one required agent and any
// number of sufficient agents vote on a pending install, bounded by a
// deadline that starts once the required agent has received the request.
package verify

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
)

// DefaultTimeout is the verification deadline when none is configured.
const DefaultTimeout = 60 * time.Second

// maxToken is where the token counter wraps back to 1.
const maxToken = math.MaxInt32

// Agent is an installed verification agent.
type Agent struct {
	Package    string
	UID        int
	CertDigest string
	Required   bool
}

// Request is what an agent receives.
type Request struct {
	Token     uint32
	Package   string
	Source    string
	Installer string
	Flags     dto.InstallFlags
}

// AgentDirectory lists installed verification agents and delivers requests
// to them. Dispatch returns once the agent has received the request.
//
//go:generate mockgen -destination=../../mocks/mock_agent_directory.go -package=mocks . AgentDirectory
type AgentDirectory interface {
	Agents() []Agent
	Dispatch(ctx context.Context, agent Agent, req Request) error
}

// Outcome is the terminal result for a token.
type Outcome struct {
	Token  uint32
	Result Result
}

// Engine tracks in-flight verifications. Every started token produces
// exactly one Outcome through the done callback.
type Engine struct {
	dir     AgentDirectory
	timeout time.Duration
	done    func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	nextToken uint32
	states    map[uint32]*State
	timers    map[uint32]*time.Timer
}

// NewEngine creates an engine. done is called once per token, outside the
// engine lock, from whichever goroutine completed the verification.
func NewEngine(dir AgentDirectory, timeout time.Duration, done func(Outcome)) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		dir:       dir,
		timeout:   timeout,
		done:      done,
		ctx:       ctx,
		cancel:    cancel,
		nextToken: 1,
		states:    make(map[uint32]*State),
		timers:    make(map[uint32]*time.Timer),
	}
}

// Start sends a verification request for a package that declares the given
// verifiers. started is false when no required agent is installed, in which
// case the install proceeds unverified.
func (e *Engine) Start(req Request, declared []dto.VerifierInfo) (token uint32, started bool) {
	agents := e.dir.Agents()

	var (
		required   *Agent
		sufficient []Agent
	)
	for i := range agents {
		if agents[i].Required && required == nil {
			required = &agents[i]
		}
	}
	if required == nil {
		return 0, false
	}

	sufficient = matchSufficient(agents, declared, required.UID)
	uids := make([]int, 0, len(sufficient))
	for _, a := range sufficient {
		uids = append(uids, a.UID)
	}

	e.mu.Lock()
	token = e.allocToken()
	e.states[token] = NewState(token, required.UID, uids)
	e.mu.Unlock()

	req.Token = token
	log.WithFields(log.Fields{
		"token":      token,
		"pkg":        req.Package,
		"required":   required.Package,
		"sufficient": len(sufficient),
	}).Info("verification started")

	for _, a := range sufficient {
		go func(a Agent) {
			if err := e.dir.Dispatch(e.ctx, a, req); err != nil {
				log.Warnf("verify: dispatch to sufficient agent %s: %v", a.Package, err)
			}
		}(a)
	}

	go e.dispatchRequired(*required, req)

	return token, true
}

// dispatchRequired delivers the request to the required agent and arms the
// deadline once it has been received.
func (e *Engine) dispatchRequired(agent Agent, req Request) {
	if err := e.dir.Dispatch(e.ctx, agent, req); err != nil {
		log.Errorf("verify: dispatch to required agent %s: %v", agent.Package, err)
		e.finish(req.Token, func(s *State) bool { return s.SetResponse(agent.UID, VoteReject) })
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.states[req.Token]; !ok {
		return
	}
	token := req.Token
	e.timers[token] = time.AfterFunc(e.timeout, func() {
		log.Warnf("verify: token %d timed out after %s", token, e.timeout)
		e.finish(token, (*State).Timeout)
	})
}

// Vote records an agent's answer. Votes for unknown or completed tokens are
// ignored and reported as not accepted.
func (e *Engine) Vote(token uint32, uid int, vote Vote) bool {
	accepted := e.finish(token, func(s *State) bool { return s.SetResponse(uid, vote) })
	log.WithFields(log.Fields{
		"token":    token,
		"uid":      uid,
		"vote":     vote,
		"accepted": accepted,
	}).Debug("verification vote")
	return accepted
}

// finish applies update to the token's state and, if that completed it,
// removes the state and reports the outcome.
func (e *Engine) finish(token uint32, update func(*State) bool) bool {
	e.mu.Lock()
	s, ok := e.states[token]
	if !ok {
		e.mu.Unlock()
		return false
	}
	applied := update(s)
	if !s.IsComplete() {
		e.mu.Unlock()
		return applied
	}

	delete(e.states, token)
	if t, ok := e.timers[token]; ok {
		t.Stop()
		delete(e.timers, token)
	}
	out := Outcome{Token: token, Result: s.Result()}
	e.mu.Unlock()

	log.WithFields(log.Fields{"token": token, "result": out.Result}).Info("verification complete")
	if e.done != nil {
		e.done(out)
	}
	return applied
}

// Pending returns the number of in-flight verifications.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

// Stop cancels outstanding dispatches and timers. Pending tokens never
// complete after Stop.
func (e *Engine) Stop() {
	e.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	for token, t := range e.timers {
		t.Stop()
		delete(e.timers, token)
	}
	e.states = make(map[uint32]*State)
}

// allocToken must be called with mu held. Tokens are never zero and skip
// values still in flight after a wrap.
func (e *Engine) allocToken() uint32 {
	for {
		token := e.nextToken
		e.nextToken++
		if e.nextToken == 0 || e.nextToken > maxToken {
			e.nextToken = 1
		}
		if _, busy := e.states[token]; !busy {
			return token
		}
	}
}

// matchSufficient returns the installed agents the package declared as
// verifiers. An agent whose certificate does not match the declared key is
// disqualified.
func matchSufficient(agents []Agent, declared []dto.VerifierInfo, requiredUID int) []Agent {
	var out []Agent
	for _, d := range declared {
		for _, a := range agents {
			if a.Package != d.Package || a.UID == requiredUID {
				continue
			}
			if a.CertDigest != d.PublicKey {
				log.Warnf("verify: agent %s certificate does not match declared key, ignoring it", a.Package)
				continue
			}
			out = append(out, a)
		}
	}
	return out
}
