// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package login

import (
	"fmt"
	"time"

	"github.com/beatgate/beatgate/internal/packet"
)

// User-facing notices queued during session issuance.
const (
	restrictedNotice = "Your account is restricted. Scores are hidden from other players until staff reviews your case."

	flaggedNotice = "Your account has been flagged for review. You can keep playing while staff looks into it."

	maintenanceWarnNotice = "The server is in maintenance mode. Regular players cannot log in right now."
)

// donorWarningWindow is how close to supporter expiry the reminder
// starts appearing.
const donorWarningWindow = 3 * 24 * time.Hour

// donorExpiryNotice renders the supporter expiry reminder for the
// remaining time.
func donorExpiryNotice(left time.Duration) string {
	days := int(left / (24 * time.Hour))
	if days < 1 {
		return "Your supporter tag expires in less than 24 hours."
	}
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("Your supporter tag expires in %d %s.", days, unit)
}

// Rejection notices attached to failure payloads.
const (
	bannedNotice = "You are banned. Contact support if you believe this is a mistake."

	lockedNotice = "Your account is locked. Contact support to unlock it."

	secondFactorNotice = "This login came from a new location. Complete the verification sent to your account before retrying."

	hardwareBannedNotice = "This machine is not allowed to log in."

	malformedNotice = "I see what you're doing..."

	forceUpdateNotice = "Your client is too old for this server. Update and try again."

	cheatDetectedNotice = "A cheat client was detected. Your account has been restricted."

	maintenanceNotice = "The server is currently in maintenance mode. Try again later."

	restartingNotice = "The server is restarting. Try again in a few seconds."
)

// FailurePayload renders the wire payload for a rejection. drained
// carries any packets queued before the attempt was cut short; only
// the maintenance path produces them, and they are prepended so the
// client still sees its one-time notices. ReasonInternalFault yields
// an empty payload: faults never leak detail to the client.
func FailurePayload(reason Reason, drained []byte) []byte {
	var tail []byte
	switch reason {
	case ReasonMalformed:
		// A hand-crafted body is not an honest client mistake. The
		// notice goes after the reply so it lands once the client has
		// processed the rejection.
		tail = append(packet.LoginReply(packet.ReplyInvalidCredentials), packet.Notification(malformedNotice)...)
	case ReasonLoginFailed:
		tail = packet.LoginReply(packet.ReplyInvalidCredentials)
	case ReasonBanned:
		tail = append(packet.Notification(bannedNotice), packet.LoginReply(packet.ReplyBanned)...)
	case ReasonLocked:
		tail = append(packet.Notification(lockedNotice), packet.LoginReply(packet.ReplyLocked)...)
	case ReasonNeedSecondFactor:
		tail = append(packet.Notification(secondFactorNotice), packet.LoginReply(packet.ReplyNeedVerification)...)
	case ReasonHardwareBanned:
		tail = append(packet.Notification(hardwareBannedNotice), packet.LoginReply(packet.ReplyBanned)...)
	case ReasonForceUpdate:
		tail = append(packet.Notification(forceUpdateNotice), packet.LoginReply(packet.ReplyOutdatedClient)...)
	case ReasonCheatClientDetected:
		tail = append(packet.Notification(cheatDetectedNotice), packet.LoginReply(packet.ReplyCheatDetected)...)
	case ReasonMaintenance:
		tail = append(packet.Notification(maintenanceNotice), packet.LoginReply(packet.ReplyInvalidCredentials)...)
	case ReasonRestarting:
		tail = append(packet.Notification(restartingNotice), packet.LoginReply(packet.ReplyServerError)...)
	case ReasonInternalFault, ReasonNone:
		return nil
	default:
		return nil
	}

	if len(drained) == 0 {
		return tail
	}
	out := make([]byte, 0, len(drained)+len(tail))
	out = append(out, drained...)
	return append(out, tail...)
}
