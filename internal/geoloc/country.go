// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package geoloc

import "strings"

// countryIDs maps ISO 3166-1 alpha-2 codes to the numeric IDs the wire
// format carries in user panels. 0 means unknown.
var countryIDs = map[string]uint8{
	"AR": 11, "AT": 15, "AU": 16, "BE": 21, "BR": 31, "CA": 38,
	"CH": 43, "CL": 44, "CN": 45, "CZ": 53, "DE": 55, "DK": 56,
	"ES": 67, "FI": 71, "FR": 74, "GB": 77, "GR": 84, "HK": 89,
	"HU": 93, "ID": 94, "IE": 95, "IL": 96, "IN": 97, "IT": 102,
	"JP": 105, "KR": 113, "MX": 140, "MY": 146, "NL": 152, "NO": 157,
	"NZ": 158, "PH": 167, "PL": 169, "PT": 172, "RU": 178, "SE": 184,
	"SG": 185, "TH": 198, "TR": 202, "TW": 204, "UA": 208, "US": 216,
	"VN": 222, "ZA": 226,
}

// CountryID maps an ISO country code to its numeric wire ID. Unknown
// or unmapped codes resolve to 0.
func CountryID(code string) uint8 {
	return countryIDs[strings.ToUpper(code)]
}
