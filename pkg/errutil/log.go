// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package errutil bridges oops errors into slog records and testify
// assertions.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// Attrs flattens an error into slog attributes. For oops errors the
// code and every context key become their own attributes so log
// pipelines can filter on them directly. Plain errors yield a single
// "error" attribute.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	for k, v := range oopsErr.Context() {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// LogError logs an error at error level with the attributes Attrs
// extracts.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}
