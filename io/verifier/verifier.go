// Package verifier connects out-of-process verification agents to the
// install engine over HTTP. Agents receive requests as JSON posted to their
// endpoint and answer by posting a vote back to the engine.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/verify"
)

// VotePath is where agents post their votes.
const VotePath = "/votes"

// Voter accepts agent votes.
type Voter interface {
	Vote(token uint32, uid int, vote verify.Vote) bool
}

// RequestMessage is the body posted to an agent endpoint.
type RequestMessage struct {
	Token     uint32           `json:"token"`
	Package   string           `json:"package"`
	Source    string           `json:"source"`
	Installer string           `json:"installer,omitempty"`
	Flags     dto.InstallFlags `json:"flags"`
}

// VoteMessage is the body an agent posts to VotePath.
type VoteMessage struct {
	Token uint32 `json:"token"`
	UID   int    `json:"uid"`
	Vote  string `json:"vote"`
}

// Notify returns a handler that posts each request to endpoint. The handler
// returns once the agent acknowledged the request.
func Notify(client *http.Client, endpoint string) verify.Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, req verify.Request) error {
		body, err := json.Marshal(RequestMessage{
			Token:     req.Token,
			Package:   req.Package,
			Source:    req.Source,
			Installer: req.Installer,
			Flags:     req.Flags,
		})
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return errors.Wrapf(err, "verification request to %s", endpoint)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return errors.Wrapf(err, "verification request to %s", endpoint)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return errors.Errorf("verification request to %s: %s", endpoint, resp.Status)
		}
		return nil
	}
}

// Handler serves VotePath for v. Accepted votes get 202, votes for unknown
// or already decided tokens get 409.
func Handler(v Voter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+VotePath, func(w http.ResponseWriter, r *http.Request) {
		var msg VoteMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "malformed vote", http.StatusBadRequest)
			return
		}
		vote, err := verify.ParseVote(msg.Vote)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger := log.WithFields(log.Fields{"token": msg.Token, "uid": msg.UID, "vote": vote})
		if !v.Vote(msg.Token, msg.UID, vote) {
			logger.Warn("verifier: vote not accepted")
			http.Error(w, "vote not accepted", http.StatusConflict)
			return
		}
		logger.Info("verifier: vote accepted")
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

// Server listens for agent votes.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func NewServer(addr string, v Voter) *Server {
	return &Server{srv: &http.Server{Addr: addr, Handler: Handler(v), ReadHeaderTimeout: 5 * time.Second}}
}

// Run starts listening and serves in the background.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.srv.Addr)
	}
	s.ln = ln
	go func() {
		log.Infof("verifier listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("verifier server: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address, valid after Run.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
