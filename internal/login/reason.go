// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package login

// Reason is the closed set of login rejection outcomes. ReasonNone
// means the attempt succeeded.
type Reason int

// Rejection reasons, in no particular priority order. Priority is
// decided by pipeline stage ordering, not by enum value.
const (
	ReasonNone Reason = iota
	ReasonMalformed
	ReasonLoginFailed
	ReasonBanned
	ReasonLocked
	ReasonNeedSecondFactor
	ReasonHardwareBanned
	ReasonForceUpdate
	ReasonCheatClientDetected
	ReasonMaintenance
	ReasonRestarting
	ReasonInternalFault
)

var reasonNames = map[Reason]string{
	ReasonNone:                "none",
	ReasonMalformed:           "malformed",
	ReasonLoginFailed:         "login_failed",
	ReasonBanned:              "banned",
	ReasonLocked:              "locked",
	ReasonNeedSecondFactor:    "need_second_factor",
	ReasonHardwareBanned:      "hardware_banned",
	ReasonForceUpdate:         "force_update",
	ReasonCheatClientDetected: "cheat_client_detected",
	ReasonMaintenance:         "maintenance",
	ReasonRestarting:          "restarting",
	ReasonInternalFault:       "internal_fault",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}
