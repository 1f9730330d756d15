// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package login

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Fingerprint sizing. Clients send up to five colon-delimited machine
// identifiers; fewer than four means the submission is malformed.
const (
	maxFingerprintParts = 5
	minFingerprintParts = 4
)

// LoginRequest is the decoded login submission. It is request-scoped
// and never outlives the pipeline run.
type LoginRequest struct {
	Username         string
	PasswordProof    string
	ClientVersion    string
	UTCOffset        int
	AllowCityDisplay bool
	Fingerprint      []string
	BlockStrangerPMs bool
}

// Parse decodes the raw login body. The body is newline-delimited into
// at least three fields (username, password proof, client info); the
// client-info field is pipe-delimited into at least five sub-fields
// (version, UTC offset, city flag, colon-delimited fingerprint, PM
// flag). Parse is a pure decode with no side effects.
func Parse(body []byte) (*LoginRequest, error) {
	fields := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(fields) < 3 {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("fields", len(fields)).
			Errorf("login body must carry at least 3 fields")
	}

	info := strings.Split(fields[2], "|")
	if len(info) < 5 {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("subfields", len(info)).
			Errorf("client info must carry at least 5 sub-fields")
	}

	utcOffset, err := strconv.Atoi(info[1])
	if err != nil {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("field", "utc_offset").
			Wrap(err)
	}
	allowCity, err := strconv.Atoi(info[2])
	if err != nil {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("field", "city_flag").
			Wrap(err)
	}

	fingerprint := strings.Split(info[3], ":")
	if len(fingerprint) > maxFingerprintParts {
		fingerprint = fingerprint[:maxFingerprintParts]
	}
	if len(fingerprint) < minFingerprintParts {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("fingerprint_parts", len(fingerprint)).
			Errorf("fingerprint must carry at least %d components", minFingerprintParts)
	}

	blockPMs, err := strconv.Atoi(info[4])
	if err != nil {
		return nil, oops.Code("LOGIN_MALFORMED").
			With("field", "pm_flag").
			Wrap(err)
	}

	return &LoginRequest{
		Username:         fields[0],
		PasswordProof:    fields[1],
		ClientVersion:    info[0],
		UTCOffset:        utcOffset,
		AllowCityDisplay: allowCity == 1,
		Fingerprint:      fingerprint,
		BlockStrangerPMs: blockPMs == 1,
	}, nil
}
