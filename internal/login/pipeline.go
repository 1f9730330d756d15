// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package login implements the login decision pipeline: a deterministic
// sequence of validation, trust, compliance and anti-cheat stages that
// either rejects an attempt with a specific wire-level failure or
// produces a live session plus its bootstrap packet queue.
package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/beatgate/beatgate/internal/alert"
	"github.com/beatgate/beatgate/internal/channel"
	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/packet"
	"github.com/beatgate/beatgate/internal/session"
	"github.com/beatgate/beatgate/internal/user"
)

// FailureSessionID is the session identifier returned when no session
// was issued.
const FailureSessionID = "no"

// tournamentMarker tags tournament-mode client version strings.
const tournamentMarker = "tourney"

// Request is one raw login attempt as received from the transport.
type Request struct {
	Body    []byte
	Origin  string
	Headers http.Header
}

// Outcome is the single typed result of a pipeline run: either a live
// session with its bootstrap payload, or a rejection reason with its
// canned payload.
type Outcome struct {
	SessionID string
	UserID    int32
	Reason    Reason
	Payload   []byte
}

// OK reports a successful login.
func (o Outcome) OK() bool {
	return o.Reason == ReasonNone
}

// Flags is the mutable server state the compliance gate reads. Both
// flags flip at runtime from operator commands.
type Flags struct {
	restarting  atomic.Bool
	maintenance atomic.Bool
}

// SetRestarting flips the shutdown-pending flag.
func (f *Flags) SetRestarting(v bool) { f.restarting.Store(v) }

// Restarting reports the shutdown-pending flag.
func (f *Flags) Restarting() bool { return f.restarting.Load() }

// SetMaintenance flips maintenance mode.
func (f *Flags) SetMaintenance(v bool) { f.maintenance.Store(v) }

// Maintenance reports maintenance mode.
func (f *Flags) Maintenance() bool { return f.maintenance.Load() }

// Config is the read-only configuration threaded into the pipeline.
type Config struct {
	MinimumVersion  string
	ProtocolVersion int32
	AntiCheat       bool
	Announcement    string
	MenuIcon        string
	DefaultChannels []string
	AdminChannel    string
	BroadcastStream string
}

// ChannelRegistry is the channel registry surface the bootstrap
// emitter uses. Membership semantics live in the chat engine.
type ChannelRegistry interface {
	Join(name string, userID int32) error
	Members(name string) int
	ListVisible() []*channel.Channel
}

// Broadcaster delivers a payload to everyone subscribed to a stream.
type Broadcaster interface {
	Broadcast(stream string, payload []byte)
}

// Deps bundles the pipeline's collaborators. Required fields are
// checked by NewPipeline; optional fields get working defaults.
type Deps struct {
	Users     user.Store
	Verified  user.VerifiedCache
	Sessions  *session.Registry
	Channels  ChannelRegistry
	Geo       geoloc.Resolver
	Alerts    alert.Notifier
	Broadcast Broadcaster
	Rules     []Rule // nil means DefaultRules()
	Config    Config
	Flags     *Flags
	Logger    *slog.Logger
	Now       func() time.Time
}

// Pipeline runs login attempts to a terminal outcome. One Pipeline
// serves all concurrent requests; per-attempt state lives on the
// stack.
type Pipeline struct {
	users     user.Store
	verified  user.VerifiedCache
	sessions  *session.Registry
	channels  ChannelRegistry
	geo       geoloc.Resolver
	alerts    alert.Notifier
	broadcast Broadcaster
	rules     []Rule
	cfg       Config
	flags     *Flags
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline creates a login pipeline. Returns an error if a required
// collaborator is missing.
func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Users == nil {
		return nil, oops.Errorf("user store is required")
	}
	if deps.Verified == nil {
		return nil, oops.Errorf("verified cache is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Errorf("session registry is required")
	}
	if deps.Channels == nil {
		return nil, oops.Errorf("channel registry is required")
	}
	if deps.Geo == nil {
		return nil, oops.Errorf("geolocation resolver is required")
	}
	if deps.Alerts == nil {
		return nil, oops.Errorf("alert notifier is required")
	}
	if deps.Broadcast == nil {
		return nil, oops.Errorf("broadcaster is required")
	}
	if deps.Flags == nil {
		deps.Flags = &Flags{}
	}
	if deps.Rules == nil {
		deps.Rules = DefaultRules()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.BroadcastStream == "" {
		deps.Config.BroadcastStream = "main"
	}
	return &Pipeline{
		users:     deps.Users,
		verified:  deps.Verified,
		sessions:  deps.Sessions,
		channels:  deps.Channels,
		geo:       deps.Geo,
		alerts:    deps.Alerts,
		broadcast: deps.Broadcast,
		rules:     deps.Rules,
		cfg:       deps.Config,
		flags:     deps.Flags,
		logger:    deps.Logger,
		now:       deps.Now,
	}, nil
}

// attempt carries per-request state between stages.
type attempt struct {
	req        *LoginRequest
	origin     string
	headers    http.Header
	userID     int32
	ident      *user.Identity
	tournament bool
	firstLogin bool
	sess       *session.Session
}

// Handle runs one login attempt to completion. It never panics
// outward: unexpected faults degrade to an empty payload with a
// detailed log record.
func (p *Pipeline) Handle(ctx context.Context, req *Request) (out Outcome) {
	a := &attempt{origin: req.Origin, headers: req.Headers}
	defer func() {
		if r := recover(); r != nil {
			if a.sess != nil {
				p.sessions.Delete(a.sess.ID)
			}
			p.logger.ErrorContext(ctx, "login pipeline panic",
				"panic", r,
				"origin", req.Origin,
				"stack", string(debug.Stack()),
			)
			out = Outcome{SessionID: FailureSessionID, Reason: ReasonInternalFault}
		}
	}()

	lr, err := Parse(req.Body)
	if err != nil {
		p.logger.InfoContext(ctx, "malformed login request", "origin", req.Origin, "error", err)
		return p.fail(ReasonMalformed, nil)
	}
	a.req = lr

	if reason, err := p.identityGate(ctx, a); err != nil {
		return p.internalFault(ctx, a, err)
	} else if reason != ReasonNone {
		return p.fail(reason, nil)
	}

	if reason := p.complianceGate(a); reason != ReasonNone {
		return p.fail(reason, nil)
	}

	if err := p.issueSession(ctx, a); err != nil {
		return p.internalFault(ctx, a, err)
	}

	if reason, drained := p.maintenanceGate(a); reason != ReasonNone {
		return p.fail(reason, drained)
	}

	if reason, err := p.antiCheatGate(ctx, a); err != nil {
		return p.internalFault(ctx, a, err)
	} else if reason != ReasonNone {
		return p.fail(reason, nil)
	}

	if err := p.bootstrap(ctx, a); err != nil {
		return p.internalFault(ctx, a, err)
	}

	p.logger.InfoContext(ctx, "login succeeded",
		"user_id", a.userID,
		"username", a.ident.Username,
		"session_id", a.sess.ID,
		"tournament", a.tournament,
		"first_login", a.firstLogin,
	)
	return Outcome{
		SessionID: a.sess.ID,
		UserID:    a.userID,
		Payload:   a.sess.Drain(),
	}
}

// fail maps a rejection reason to its canned outcome.
func (p *Pipeline) fail(reason Reason, drained []byte) Outcome {
	return Outcome{
		SessionID: FailureSessionID,
		Reason:    reason,
		Payload:   FailurePayload(reason, drained),
	}
}

// internalFault logs the fault in full and degrades to an empty,
// non-leaking payload. Any session issued during this attempt is
// withdrawn.
func (p *Pipeline) internalFault(ctx context.Context, a *attempt, err error) Outcome {
	if a.sess != nil {
		p.sessions.Delete(a.sess.ID)
	}
	p.logger.ErrorContext(ctx, "login pipeline fault",
		"user_id", a.userID,
		"origin", a.origin,
		"error", err,
	)
	return Outcome{SessionID: FailureSessionID, Reason: ReasonInternalFault}
}

// identityGate runs the sequential credential and trust checks. The
// order is fixed: earlier checks take priority for the user-visible
// error.
func (p *Pipeline) identityGate(ctx context.Context, a *attempt) (Reason, error) {
	id, err := p.users.ResolveUsername(ctx, a.req.Username)
	if errors.Is(err, user.ErrNotFound) {
		return ReasonLoginFailed, nil
	}
	if err != nil {
		return ReasonNone, err
	}
	a.userID = id

	ok, err := p.users.VerifyPassword(ctx, id, a.req.PasswordProof)
	if err != nil {
		return ReasonNone, err
	}
	if !ok {
		return ReasonLoginFailed, nil
	}

	ident, err := p.users.GetIdentity(ctx, id)
	if err != nil {
		return ReasonNone, err
	}
	a.ident = ident
	pending := ident.Pending()

	banned, err := p.users.IsBanned(ctx, id)
	if err != nil {
		return ReasonNone, err
	}
	if banned && !pending {
		return ReasonBanned, nil
	}

	locked, err := p.users.IsLocked(ctx, id)
	if err != nil {
		return ReasonNone, err
	}
	if locked && !pending {
		return ReasonLocked, nil
	}

	need2FA, err := p.users.NeedsSecondFactor(ctx, id, a.origin)
	if err != nil {
		return ReasonNone, err
	}
	if need2FA {
		p.logger.WarnContext(ctx, "second factor required",
			"user_id", id,
			"origin", a.origin,
		)
		return ReasonNeedSecondFactor, nil
	}

	verified := false
	if v, cached, err := p.verified.Verified(ctx, id); err != nil {
		p.logger.WarnContext(ctx, "verified cache read failed", "user_id", id, "error", err)
	} else if cached {
		verified = v
	}
	if !verified {
		hv, err := p.users.HasVerifiedHardware(ctx, id)
		if err != nil {
			return ReasonNone, err
		}
		verified = hv
	}

	if pending || !verified {
		ok, err := p.users.VerifyHardware(ctx, id, a.req.Fingerprint)
		if err != nil {
			return ReasonNone, err
		}
		if !ok {
			// Unverifiable hardware on a pending account is treated
			// as ban-worthy, not merely rejected.
			if err := p.verified.SetVerified(ctx, id, false); err != nil {
				p.logger.WarnContext(ctx, "verified cache write failed", "user_id", id, "error", err)
			}
			p.logger.InfoContext(ctx, "hardware verification failed", "user_id", id)
			return ReasonBanned, nil
		}
		a.firstLogin = true
		if err := p.verified.SetVerified(ctx, id, true); err != nil {
			p.logger.WarnContext(ctx, "verified cache write failed", "user_id", id, "error", err)
		}
		p.logger.InfoContext(ctx, "hardware verified", "user_id", id)
	}

	allowed, err := p.users.RecordHardware(ctx, id, a.req.Fingerprint, a.firstLogin)
	if err != nil {
		return ReasonNone, err
	}
	if !allowed {
		return ReasonHardwareBanned, nil
	}

	// Audit-trail writes never fail the login.
	if err := p.users.RecordOrigin(ctx, id, a.origin); err != nil {
		p.logger.WarnContext(ctx, "record origin failed", "user_id", id, "error", err)
	}
	if err := p.users.RecordClientVersion(ctx, id, a.req.ClientVersion); err != nil {
		p.logger.WarnContext(ctx, "record client version failed", "user_id", id, "error", err)
	}
	return ReasonNone, nil
}

// complianceGate enforces the version floor and global server state.
// Session invalidation deliberately precedes the version check: a
// rejected force-update attempt still drops the user's previous
// session, matching long-standing client expectations.
func (p *Pipeline) complianceGate(a *attempt) Reason {
	a.tournament = strings.Contains(a.req.ClientVersion, tournamentMarker)
	if !a.tournament {
		p.sessions.DeleteAllForUser(a.userID)
	}

	if p.versionBelowFloor(a.req.ClientVersion) {
		return ReasonForceUpdate
	}
	if p.flags.Restarting() {
		return ReasonRestarting
	}
	return ReasonNone
}

// versionBelowFloor compares the normalized client version against the
// configured minimum. Unparseable client versions count as below the
// floor; an unparseable floor disables the check.
func (p *Pipeline) versionBelowFloor(version string) bool {
	if p.cfg.MinimumVersion == "" {
		return false
	}
	minimum, err := semver.NewVersion(normalizeVersion(p.cfg.MinimumVersion))
	if err != nil {
		p.logger.Warn("minimum version is not parseable, version floor disabled",
			"minimum_version", p.cfg.MinimumVersion,
		)
		return false
	}
	v, err := semver.NewVersion(normalizeVersion(version))
	if err != nil {
		return true
	}
	return v.LessThan(minimum)
}

// normalizeVersion strips every rune that is not a digit or a dot.
func normalizeVersion(version string) string {
	var b strings.Builder
	for _, r := range version {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// issueSession allocates the session and attaches identity state plus
// the early one-time notifications.
func (p *Pipeline) issueSession(ctx context.Context, a *attempt) error {
	restricted, err := p.users.IsRestricted(ctx, a.userID)
	if err != nil {
		return err
	}

	s := session.New(a.userID, a.ident.Username, a.origin, a.req.UTCOffset, a.tournament)
	s.Privileges = a.ident.Privileges
	s.Restricted = restricted
	s.SilenceEnd = a.ident.SilenceEnd
	s.Country = geoloc.CountryID(a.ident.Country)
	s.AllowCity = a.req.AllowCityDisplay
	s.BlockStranger = a.req.BlockStrangerPMs
	p.sessions.Add(s)
	a.sess = s

	if restricted {
		s.Enqueue(packet.Notification(restrictedNotice))
	}

	if a.ident.Privileges.Has(user.PrivDonor) && !a.ident.DonorExpiry.IsZero() {
		if left := a.ident.DonorExpiry.Sub(p.now()); left <= donorWarningWindow {
			s.Enqueue(packet.Notification(donorExpiryNotice(left)))
		}
	}

	flagged, err := p.users.IsFlagged(ctx, a.userID)
	if err != nil {
		p.logger.WarnContext(ctx, "flagged check failed", "user_id", a.userID, "error", err)
	} else if flagged {
		s.Enqueue(packet.Notification(flaggedNotice))
	}

	if p.cfg.Announcement != "" {
		s.Enqueue(packet.Notification(p.cfg.Announcement))
	}
	return nil
}

// maintenanceGate ejects non-elevated sessions while maintenance mode
// is on. Elevated sessions proceed with a warning. On rejection the
// session's already-queued bytes travel with the failure payload.
func (p *Pipeline) maintenanceGate(a *attempt) (Reason, []byte) {
	if !p.flags.Maintenance() {
		return ReasonNone, nil
	}
	if !a.sess.Elevated() {
		drained := a.sess.Drain()
		p.sessions.Delete(a.sess.ID)
		a.sess = nil
		return ReasonMaintenance, drained
	}
	a.sess.Enqueue(packet.Notification(maintenanceWarnNotice))
	return ReasonNone, nil
}

// antiCheatGate evaluates the detection rules in priority order; the
// first match wins. The whole gate is skippable by configuration.
func (p *Pipeline) antiCheatGate(ctx context.Context, a *attempt) (Reason, error) {
	if !p.cfg.AntiCheat || len(p.rules) == 0 {
		return ReasonNone, nil
	}

	lastVersion, err := p.users.LastClientVersion(ctx, a.userID)
	if err != nil {
		p.logger.WarnContext(ctx, "last client version lookup failed", "user_id", a.userID, "error", err)
		lastVersion = ""
	}

	for _, rule := range p.rules {
		if !rule.Match(a.headers, lastVersion) {
			continue
		}

		if a.sess.Restricted {
			a.sess.Enqueue(packet.Notification(rule.Warning()))
			p.alerts.Notify(ctx, alert.Event{
				Title:  "cheat client detected (repeat)",
				Detail: a.ident.Username + " matched " + rule.Name() + " while already restricted",
				UserID: a.userID,
			})
			p.logger.InfoContext(ctx, "cheat client detected, already restricted",
				"user_id", a.userID,
				"rule", rule.Name(),
			)
			return ReasonNone, nil
		}

		p.sessions.Delete(a.sess.ID)
		if err := p.users.Restrict(ctx, a.userID); err != nil {
			return ReasonNone, err
		}
		p.alerts.Notify(ctx, alert.Event{
			Title:  "cheat client detected",
			Detail: a.ident.Username + " matched " + rule.Name() + " and got restricted",
			UserID: a.userID,
		})
		p.logger.InfoContext(ctx, "cheat client detected, restricting",
			"user_id", a.userID,
			"rule", rule.Name(),
		)
		return ReasonCheatClientDetected, nil
	}
	return ReasonNone, nil
}
