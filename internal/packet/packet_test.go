// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package packet_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatgate/beatgate/internal/packet"
)

// header reads the packet ID and payload length from a frame.
func header(t *testing.T, frame []byte) (packet.ID, int) {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), 7, "frame must carry a full header")
	id := packet.ID(binary.LittleEndian.Uint16(frame[0:2]))
	assert.Equal(t, byte(0), frame[2], "pad byte must be zero")
	length := int(binary.LittleEndian.Uint32(frame[3:7]))
	require.Equal(t, length, len(frame)-7, "declared length must match payload")
	return id, length
}

func TestLoginReply(t *testing.T) {
	tests := []struct {
		name string
		code int32
	}{
		{"success carries user id", 1001},
		{"invalid credentials", packet.ReplyInvalidCredentials},
		{"outdated client", packet.ReplyOutdatedClient},
		{"banned", packet.ReplyBanned},
		{"locked", packet.ReplyLocked},
		{"needs verification", packet.ReplyNeedVerification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := packet.LoginReply(tt.code)
			id, length := header(t, frame)
			assert.Equal(t, packet.IDLoginReply, id)
			assert.Equal(t, 4, length)
			assert.Equal(t, tt.code, int32(binary.LittleEndian.Uint32(frame[7:11])))
		})
	}
}

func TestNotification(t *testing.T) {
	t.Run("non-empty string", func(t *testing.T) {
		frame := packet.Notification("hello")
		id, _ := header(t, frame)
		assert.Equal(t, packet.IDNotification, id)
		// 0x0b marker, ULEB128 length 5, then the bytes
		assert.Equal(t, byte(0x0b), frame[7])
		assert.Equal(t, byte(5), frame[8])
		assert.Equal(t, "hello", string(frame[9:14]))
	})

	t.Run("empty string is a single null marker", func(t *testing.T) {
		frame := packet.Notification("")
		_, length := header(t, frame)
		assert.Equal(t, 1, length)
		assert.Equal(t, byte(0x00), frame[7])
	})

	t.Run("long string uses multi-byte ULEB128 length", func(t *testing.T) {
		msg := make([]byte, 200)
		for i := range msg {
			msg[i] = 'a'
		}
		frame := packet.Notification(string(msg))
		_, length := header(t, frame)
		// marker + 2 length bytes + 200 payload bytes
		assert.Equal(t, 203, length)
		assert.Equal(t, byte(0xc8), frame[8]) // 200 = 0xc8 | continuation
		assert.Equal(t, byte(0x01), frame[9])
	})
}

func TestChannelInfoEnd(t *testing.T) {
	frame := packet.ChannelInfoEnd()
	id, length := header(t, frame)
	assert.Equal(t, packet.IDChannelInfoEnd, id)
	assert.Equal(t, 0, length)
}

func TestUserPanel(t *testing.T) {
	frame := packet.UserPanel(packet.Panel{
		UserID:    42,
		Username:  "melody",
		UTCOffset: -5,
		CountryID: 7,
	})
	id, _ := header(t, frame)
	assert.Equal(t, packet.IDUserPanel, id)
	assert.Equal(t, int32(42), int32(binary.LittleEndian.Uint32(frame[7:11])))
}

func TestFriendList(t *testing.T) {
	frame := packet.FriendList([]int32{3, 9, 27})
	id, length := header(t, frame)
	assert.Equal(t, packet.IDFriendList, id)
	assert.Equal(t, 2+3*4, length)
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(frame[7:9]))
	assert.Equal(t, int32(27), int32(binary.LittleEndian.Uint32(frame[17:21])))
}

func TestCapabilities(t *testing.T) {
	frame := packet.Capabilities(packet.CapSupporter | packet.CapTournamentStaff)
	id, length := header(t, frame)
	assert.Equal(t, packet.IDCapabilities, id)
	assert.Equal(t, 4, length)
	assert.Equal(t, byte(5), frame[7])
}
