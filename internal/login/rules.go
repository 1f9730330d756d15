// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package login

import (
	"net/http"

	"github.com/gobwas/glob"
)

// Rule is one anti-cheat detection. Rules are independent and are
// evaluated in slice order; the first match wins.
type Rule interface {
	// Name identifies the detection in logs and alerts.
	Name() string

	// Warning is the notification shown to already-restricted users.
	Warning() string

	// Match evaluates the rule against the request headers and the
	// client version recorded on a previous login.
	Match(headers http.Header, lastVersion string) bool
}

// HeaderRule fires when a request header carries a known sentinel
// value planted by a modified client.
type HeaderRule struct {
	RuleName   string
	Header     string
	Sentinel   string
	WarnNotice string
}

// Name identifies the detection.
func (r HeaderRule) Name() string { return r.RuleName }

// Warning is the already-restricted notification text.
func (r HeaderRule) Warning() string { return r.WarnNotice }

// Match checks the header against the sentinel.
func (r HeaderRule) Match(headers http.Header, _ string) bool {
	return headers.Get(r.Header) == r.Sentinel
}

// VersionRule fires when the historical reported client version
// matches a deny-listed build identifier. Patterns use glob syntax so
// one entry can cover a build series.
type VersionRule struct {
	name    string
	warning string
	globs   []glob.Glob
}

// NewVersionRule compiles a version deny-list rule. Invalid patterns
// panic; the deny list is static program data.
func NewVersionRule(name, warning string, patterns ...string) VersionRule {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		globs = append(globs, glob.MustCompile(p))
	}
	return VersionRule{name: name, warning: warning, globs: globs}
}

// Name identifies the detection.
func (r VersionRule) Name() string { return r.name }

// Warning is the already-restricted notification text.
func (r VersionRule) Warning() string { return r.warning }

// Match checks the historical version against the deny list.
func (r VersionRule) Match(_ http.Header, lastVersion string) bool {
	if lastVersion == "" {
		return false
	}
	for _, g := range r.globs {
		if g.Match(lastVersion) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in detection set, highest priority
// first.
func DefaultRules() []Rule {
	return []Rule{
		HeaderRule{
			RuleName:   "modified-client-2020",
			Header:     "bgc",
			Sentinel:   "happy",
			WarnNotice: "You are restricted for using a modified client. The restriction stands while you keep using it.",
		},
		HeaderRule{
			RuleName:   "stealth-loader",
			Header:     "a",
			Sentinel:   "@_@_@_@_@_@_@_@___@_@_@_@___@_@___@",
			WarnNotice: "You are restricted for using an injection loader.",
		},
		NewVersionRule(
			"modified-client-2019",
			"You are restricted for logging in with a known modified build.",
			"0*",
			"b20190326.2",
			"b20190401.22f56c084ba339eefd9c7ca4335e246f80",
			"b20190906.1",
			"b20191223.3",
		),
		NewVersionRule(
			"memory-injector",
			"Cheat clients are not welcome here. The restriction stands.",
			"b20190226.2",
		),
	}
}
