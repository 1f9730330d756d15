// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package packet implements the binary frames sent to game clients.
//
// Every frame is a little-endian header (uint16 packet ID, one pad
// byte, uint32 payload length) followed by the payload. Strings are
// encoded as 0x00 for empty, or 0x0b followed by a ULEB128 length and
// the raw bytes.
package packet

import (
	"bytes"
	"encoding/binary"
	"math"
)

// ID identifies a server-to-client packet type.
type ID uint16

// Server-to-client packet IDs.
const (
	IDLoginReply      ID = 5
	IDUserStats       ID = 11
	IDNotification    ID = 24
	IDChannelJoined   ID = 64
	IDChannelInfo     ID = 65
	IDCapabilities    ID = 71
	IDFriendList      ID = 72
	IDProtocolVersion ID = 75
	IDMainMenuIcon    ID = 76
	IDUserPanel       ID = 83
	IDChannelInfoEnd  ID = 89
	IDSilenceInfo     ID = 92
)

// Login reply codes carried in an IDLoginReply frame. Non-negative
// values are the authenticated user ID.
const (
	ReplyInvalidCredentials int32 = -1
	ReplyOutdatedClient     int32 = -2
	ReplyBanned             int32 = -3
	ReplyLocked             int32 = -4
	ReplyServerError        int32 = -5
	ReplyCheatDetected      int32 = -6
	ReplyNeedVerification   int32 = -8
)

// Capability bits carried in an IDCapabilities frame.
const (
	CapSupporter       byte = 1 << 0
	CapElevated        byte = 1 << 1
	CapTournamentStaff byte = 1 << 2
)

// writer accumulates a single packet payload.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) putByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) putUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) putInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *writer) putFloat32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

func (w *writer) putString(s string) {
	if s == "" {
		w.buf.WriteByte(0x00)
		return
	}
	w.buf.WriteByte(0x0b)
	w.putULEB128(uint(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) putULEB128(v uint) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// finish frames the payload with the packet header.
func (w *writer) finish(id ID) []byte {
	payload := w.buf.Bytes()
	out := make([]byte, 0, 7+len(payload))
	var hdr [7]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(id))
	// hdr[2] is the pad byte, always zero
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	out = append(out, hdr[:]...)
	out = append(out, payload...)
	return out
}

// LoginReply builds a login reply frame. userID is the authenticated
// user ID on success or one of the negative Reply codes on failure.
func LoginReply(userID int32) []byte {
	var w writer
	w.putInt32(userID)
	return w.finish(IDLoginReply)
}

// Notification builds a plain-text notification frame.
func Notification(msg string) []byte {
	var w writer
	w.putString(msg)
	return w.finish(IDNotification)
}

// SilenceInfo reports the remaining silence time in seconds.
func SilenceInfo(seconds int32) []byte {
	var w writer
	w.putInt32(seconds)
	return w.finish(IDSilenceInfo)
}

// ProtocolVersion reports the protocol version the server speaks.
func ProtocolVersion(v int32) []byte {
	var w writer
	w.putInt32(v)
	return w.finish(IDProtocolVersion)
}

// Capabilities reports the client's capability bits (Cap* constants).
func Capabilities(flags byte) []byte {
	var w writer
	w.putInt32(int32(flags))
	return w.finish(IDCapabilities)
}

// Panel describes a user for presence display.
type Panel struct {
	UserID    int32
	Username  string
	UTCOffset int8
	CountryID uint8
	Longitude float32
	Latitude  float32
}

// UserPanel builds a presence frame for one user.
func UserPanel(p Panel) []byte {
	var w writer
	w.putInt32(p.UserID)
	w.putString(p.Username)
	w.putByte(byte(p.UTCOffset) + 24)
	w.putByte(p.CountryID)
	w.putFloat32(p.Longitude)
	w.putFloat32(p.Latitude)
	return w.finish(IDUserPanel)
}

// UserStats builds a minimal stats frame for one user. The stats
// engine lives outside the login gate, so only identity is carried.
func UserStats(userID int32) []byte {
	var w writer
	w.putInt32(userID)
	w.putByte(0) // idle action
	w.putString("")
	return w.finish(IDUserStats)
}

// ChannelInfoEnd marks the end of channel metadata.
func ChannelInfoEnd() []byte {
	var w writer
	return w.finish(IDChannelInfoEnd)
}

// ChannelJoined confirms membership in a channel.
func ChannelJoined(name string) []byte {
	var w writer
	w.putString(name)
	return w.finish(IDChannelJoined)
}

// ChannelInfo describes one joinable channel.
func ChannelInfo(name, topic string, users int) []byte {
	var w writer
	w.putString(name)
	w.putString(topic)
	w.putUint16(uint16(users)) //nolint:gosec // channel population fits uint16
	return w.finish(IDChannelInfo)
}

// FriendList carries the user IDs on the client's friend list.
func FriendList(ids []int32) []byte {
	var w writer
	w.putUint16(uint16(len(ids))) //nolint:gosec // friend count fits uint16
	for _, id := range ids {
		w.putInt32(id)
	}
	return w.finish(IDFriendList)
}

// MainMenuIcon carries the main-menu announcement image/link pair.
func MainMenuIcon(icon string) []byte {
	var w writer
	w.putString(icon)
	return w.finish(IDMainMenuIcon)
}
