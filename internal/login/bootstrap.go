// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package login

import (
	"context"

	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/packet"
	"github.com/beatgate/beatgate/internal/user"
)

// bootstrap queues the fixed packet sequence a freshly authenticated
// client expects. The order is load-bearing: clients parse the stream
// statefully, and channel metadata must arrive after the channel-info
// terminator, not before.
func (p *Pipeline) bootstrap(ctx context.Context, a *attempt) error {
	s := a.sess

	s.Enqueue(packet.SilenceInfo(s.SilenceSecondsLeft(p.now())))
	s.Enqueue(packet.LoginReply(a.userID))
	s.Enqueue(packet.ProtocolVersion(p.cfg.ProtocolVersion))
	s.Enqueue(packet.Capabilities(capabilityBits(a.ident.Privileges, s.Restricted)))

	// The self panel goes out with the stored country before the
	// origin lookup completes. The resolved location only reaches
	// other clients through the presence broadcast below.
	self := packet.Panel{
		UserID:    a.userID,
		Username:  a.ident.Username,
		UTCOffset: int8(s.UTCOffset), //nolint:gosec // offsets span -12..14
		CountryID: s.Country,
	}
	s.Enqueue(packet.UserPanel(self))
	s.Enqueue(packet.UserStats(a.userID))

	s.Enqueue(packet.ChannelInfoEnd())

	joins := p.cfg.DefaultChannels
	if s.Elevated() && p.cfg.AdminChannel != "" {
		joins = append(joins[:len(joins):len(joins)], p.cfg.AdminChannel)
	}
	for _, name := range joins {
		if err := p.channels.Join(name, a.userID); err != nil {
			p.logger.WarnContext(ctx, "channel join failed",
				"user_id", a.userID,
				"channel", name,
				"error", err,
			)
			continue
		}
		s.Enqueue(packet.ChannelJoined(name))
	}
	for _, ch := range p.channels.ListVisible() {
		s.Enqueue(packet.ChannelInfo(ch.Name, ch.Topic, p.channels.Members(ch.Name)))
	}

	friends, err := p.users.FriendIDs(ctx, a.userID)
	if err != nil {
		return err
	}
	s.Enqueue(packet.FriendList(friends))

	if p.cfg.MenuIcon != "" {
		s.Enqueue(packet.MainMenuIcon(p.cfg.MenuIcon))
	}

	// Every live non-restricted session gets announced, the fresh one
	// included. Panels only: clients request stats for the users they
	// actually render.
	for _, other := range p.sessions.Snapshot() {
		if other.Restricted {
			continue
		}
		s.Enqueue(packet.UserPanel(packet.Panel{
			UserID:    other.UserID,
			Username:  other.Username,
			UTCOffset: int8(other.UTCOffset), //nolint:gosec // offsets span -12..14
			CountryID: other.Country,
			Longitude: other.Longitude,
			Latitude:  other.Latitude,
		}))
	}

	p.resolveLocation(ctx, a)

	if !s.Restricted {
		self.CountryID = s.Country
		if s.AllowCity {
			self.Longitude = s.Longitude
			self.Latitude = s.Latitude
		}
		p.broadcast.Broadcast(p.cfg.BroadcastStream, packet.UserPanel(self))
	}
	return nil
}

// resolveLocation looks up the origin address and settles the session
// coordinates. Lookup failures leave the session at the stored country
// with zeroed coordinates; they never fail the login.
func (p *Pipeline) resolveLocation(ctx context.Context, a *attempt) {
	loc, err := p.geo.Resolve(ctx, a.origin)
	if err != nil {
		p.logger.WarnContext(ctx, "geolocation lookup failed",
			"user_id", a.userID,
			"origin", a.origin,
			"error", err,
		)
		return
	}
	s := a.sess
	s.Latitude = loc.Latitude
	s.Longitude = loc.Longitude
	if loc.Country != geoloc.UnknownCountry {
		s.Country = geoloc.CountryID(loc.Country)
		if a.ident.Country == "" || a.ident.Country == geoloc.UnknownCountry {
			if err := p.users.SetCountry(ctx, a.userID, loc.Country); err != nil {
				p.logger.WarnContext(ctx, "persisting country failed",
					"user_id", a.userID,
					"error", err,
				)
			}
		}
	}
}

// capabilityBits maps account state to the capability byte the client
// renders from. Every player in good standing is shown as a supporter;
// only a restriction takes the bit away.
func capabilityBits(priv user.Privileges, restricted bool) byte {
	var caps byte
	if !restricted {
		caps |= packet.CapSupporter
	}
	if priv.Elevated() {
		caps |= packet.CapElevated
	}
	if priv.Has(user.PrivTournamentStaff) {
		caps |= packet.CapTournamentStaff
	}
	return caps
}
