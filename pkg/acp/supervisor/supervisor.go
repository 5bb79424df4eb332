// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package supervisor drives one AID's connection lifecycle: sign-in,
// heartbeat + message channel bring-up, reconnection, and re-auth, per
// spec.md §4.11's state machine.
package supervisor

import (
	"context"
	"encoding/binary"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/channel"
	"github.com/acp-project/acp-go/pkg/acp/group"
	"github.com/acp-project/acp-go/pkg/acp/groupstore"
	"github.com/acp-project/acp-go/pkg/acp/heartbeat"
	"github.com/acp-project/acp-go/pkg/acp/identity"
	"github.com/acp-project/acp-go/pkg/acp/session"
)

// State is the Supervisor's connection state, the same six-value
// machine identity.AgentRuntime already tracks for a signed-in AID.
type State = identity.State

const (
	StateOffline        = identity.StateOffline
	StateConnecting     = identity.StateConnecting
	StateAuthenticating = identity.StateAuthenticating
	StateOnline         = identity.StateOnline
	StateReconnecting   = identity.StateReconnecting
	StateError          = identity.StateError
)

var heartbeatRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second}

// Supervisor owns one AID's live connection: heartbeat, message channel,
// session manager, and (if configured) group client/sync engine.
// Implements health.ConnectivityProbe.
type Supervisor struct {
	aid    string
	caBase string
	apBase string

	identityMgr *identity.Manager
	groupStore  *groupstore.Store
	log         logger.Logger

	mu          sync.RWMutex
	id          *identity.AgentIdentity
	cfg         *identity.ConnectionConfig
	hb          *heartbeat.Client
	ch          *channel.Client
	sessMgr     *session.Manager
	groupClient *group.Client
	groupSync   *group.Sync
	lastSignInOK bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger substitutes the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithGroupStore installs the on-disk group message store backing the
// sync engine; without one, group sync is unavailable.
func WithGroupStore(store *groupstore.Store) Option {
	return func(s *Supervisor) { s.groupStore = store }
}

// New builds a Supervisor for id, authenticating against caBase/apBase.
func New(identityMgr *identity.Manager, id *identity.AgentIdentity, caBase, apBase string, opts ...Option) *Supervisor {
	s := &Supervisor{
		aid:         id.AID,
		caBase:      caBase,
		apBase:      apBase,
		identityMgr: identityMgr,
		id:          id,
		log:         logger.NewDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) runtime() *identity.AgentRuntime {
	return s.identityMgr.Runtime(s.aid)
}

// CurrentState implements health.ConnectivityProbe.
func (s *Supervisor) CurrentState() State {
	return s.runtime().State()
}

// EntrypointReachable implements health.ConnectivityProbe: whether the
// most recent CA/AP sign-in succeeded.
func (s *Supervisor) EntrypointReachable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSignInOK
}

// HeartbeatAlive implements health.ConnectivityProbe.
func (s *Supervisor) HeartbeatAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hb != nil
}

// ChannelConnected implements health.ConnectivityProbe.
func (s *Supervisor) ChannelConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch != nil && s.ch.IsConnected()
}

// SessionManager returns the live session.Manager, valid once Online
// has completed successfully.
func (s *Supervisor) SessionManager() *session.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessMgr
}

// GroupSync returns the live group sync engine, or nil if WithGroupStore
// was never configured.
func (s *Supervisor) GroupSync() *group.Sync {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupSync
}

// Online runs spec.md §4.11's Connecting -> Authenticating -> Online
// path: CA+AP sign-in and entrypoint discovery (sequential, via
// identity.Manager.Online), then heartbeat + message channel brought up
// concurrently via errgroup.
func (s *Supervisor) Online(ctx context.Context) error {
	cfg, err := s.identityMgr.Online(ctx, s.id, s.caBase, s.apBase, s.log)
	if err != nil {
		s.mu.Lock()
		s.lastSignInOK = false
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.lastSignInOK = true
	s.cfg = cfg
	s.mu.Unlock()

	return s.bringUpLinks(ctx, cfg)
}

// bringUpLinks brings the UDP heartbeat and the WebSocket message channel
// up concurrently via errgroup, per spec.md §4.11 ("Authenticating -->
// Online (heartbeat up + ws up)"). The channel is built with the session
// manager's inbound handler and (when a group store is configured) the
// group client's raw-frame hook wired in from construction, using a
// forward-declared var to break the handler/owner construction cycle.
func (s *Supervisor) bringUpLinks(ctx context.Context, cfg *identity.ConnectionConfig) error {
	var sessMgr *session.Manager
	var gc *group.Client

	ch := channel.New(s.channelURL(cfg),
		channel.WithReconnectNeededHandler(s.onReconnectNeeded),
		channel.WithLogger(s.log),
		channel.WithSessionMessageHandler(func(f channel.Frame) {
			if sessMgr != nil {
				sessMgr.ChannelHandler()(f)
			}
		}),
		channel.WithRawFrameHook(func(f channel.Frame) bool {
			if gc == nil {
				return false
			}
			return gc.HandleIncoming(f)
		}),
	)
	sessMgr = session.New(s.aid, ch, nil, s.log)

	eg, gctx := errgroup.WithContext(ctx)
	var hb *heartbeat.Client
	eg.Go(func() error {
		client, err := heartbeat.Dial(cfg.HeartbeatServer, s.aid, signCookie(cfg.MessageSignature),
			heartbeat.WithDeadHandler(s.onHeartbeatDead),
			heartbeat.WithLogger(s.log),
		)
		if err != nil {
			return err
		}
		go client.Run()
		hb = client
		return nil
	})
	eg.Go(func() error {
		return ch.Connect(gctx)
	})
	if err := eg.Wait(); err != nil {
		s.runtime().SetState(StateError)
		return err
	}

	var gsync *group.Sync
	if s.groupStore != nil {
		authorityAID := group.AuthorityAID(issuerDomainOf(s.aid))
		sess, err := sessMgr.CreateSession(ctx, []string{s.aid, authorityAID})
		if err != nil {
			s.runtime().SetState(StateError)
			return err
		}
		gc = group.Init(s.aid, issuerDomainOf(s.aid), sess.ID, ch, group.WithLogger(s.log))
		gsync = group.NewSync(gc, group.NewOps(gc), s.groupStore, s.log)
	}

	s.mu.Lock()
	s.hb = hb
	s.ch = ch
	s.sessMgr = sessMgr
	s.groupClient = gc
	s.groupSync = gsync
	s.mu.Unlock()

	s.runtime().SetState(StateOnline)
	s.log.Info("supervisor online", logger.String("aid", s.aid))
	return nil
}

// channelURL appends agent_id/signature query parameters to the
// access point's already-complete message_server URL.
func (s *Supervisor) channelURL(cfg *identity.ConnectionConfig) string {
	u, err := url.Parse(cfg.MessageServer)
	if err != nil {
		return cfg.MessageServer
	}
	q := u.Query()
	q.Set("agent_id", s.aid)
	q.Set("signature", cfg.MessageSignature)
	u.RawQuery = q.Encode()
	return u.String()
}

// signCookie deterministically derives the UDP heartbeat correlator from
// the AP-issued message signature: the first 8 bytes of its SHA-256,
// big-endian. The wire format fixes sign_cookie as a bare u64 without
// specifying its derivation; this keeps heartbeat and message channel
// correlated to the same signed session without a second round trip.
func signCookie(signature string) uint64 {
	sum := acpcrypto.SHA256([]byte(signature))
	return binary.BigEndian.Uint64(sum[:8])
}

func issuerDomainOf(aid string) string {
	for i := 0; i < len(aid); i++ {
		if aid[i] == '.' {
			return aid[i+1:]
		}
	}
	return aid
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// onHeartbeatDead implements spec.md §4.11's "Online --hb dead-->
// Reconnecting": it retries dialing the heartbeat channel on the same
// signature a bounded number of times (after 1s, 2s, 3s, 5s and 8s)
// before falling back to a full re-auth, like the message channel's own
// fast-retry policy but with its own delays.
func (s *Supervisor) onHeartbeatDead() {
	s.runtime().SetState(StateReconnecting)
	s.log.Warn("heartbeat channel declared dead", logger.String("aid", s.aid))

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()
	if cfg == nil {
		s.reauth()
		return
	}

	for _, delay := range heartbeatRetryDelays {
		time.Sleep(delay)
		client, err := heartbeat.Dial(cfg.HeartbeatServer, s.aid, signCookie(cfg.MessageSignature),
			heartbeat.WithDeadHandler(s.onHeartbeatDead),
			heartbeat.WithLogger(s.log),
		)
		if err != nil {
			continue
		}
		go client.Run()
		s.mu.Lock()
		s.hb = client
		s.mu.Unlock()
		s.runtime().SetState(StateOnline)
		s.log.Info("heartbeat channel recovered", logger.String("aid", s.aid))
		return
	}

	s.reauth()
}

// onReconnectNeeded implements spec.md §4.11's "Reconnecting --retries
// exhausted--> re-auth loop": the message channel's own 5-step fast
// retry has been exhausted, so the Supervisor re-runs sign-in end to end
// and replays group presence.
func (s *Supervisor) onReconnectNeeded() {
	s.runtime().SetState(StateReconnecting)
	s.log.Warn("message channel reconnect exhausted, re-authenticating", logger.String("aid", s.aid))
	s.reauth()
}

func (s *Supervisor) reauth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.RLock()
	var groups []string
	if s.groupSync != nil {
		groups = s.groupSync.OnlineGroups()
	}
	s.mu.RUnlock()

	if err := s.Online(ctx); err != nil {
		s.runtime().SetState(StateError)
		s.log.Error("re-authentication failed", logger.Error(err))
		return
	}

	s.mu.RLock()
	gsync := s.groupSync
	s.mu.RUnlock()
	if gsync != nil {
		for _, groupID := range groups {
			if err := gsync.JoinGroupSession(ctx, groupID); err != nil {
				s.log.Warn("group rejoin after reconnect failed", logger.String("group_id", groupID), logger.Error(err))
			}
		}
	}
}

// Offline implements spec.md §4.11's "Any state --offline()--> Offline":
// it tears down the heartbeat and message channel and notifies the
// access point.
func (s *Supervisor) Offline(ctx context.Context) error {
	s.mu.Lock()
	hb, ch := s.hb, s.ch
	s.hb, s.ch, s.sessMgr, s.groupClient, s.groupSync = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if hb != nil {
		hb.Offline()
	}
	if ch != nil {
		_ = ch.Close()
	}

	s.runtime().SetState(StateOffline)

	if err := s.identityMgr.SignOut(ctx, s.apBase, s.aid); err != nil {
		return acperrors.Wrap(acperrors.NetworkError, "sign out", err)
	}
	return nil
}
