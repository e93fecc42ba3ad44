package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// reportedError marks a failure whose message was already written to the
// terminal, so main exits non-zero without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func titleLabel(value string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(strings.TrimSpace(value), "_", " "))
}

func parseUID(raw string) (int64, error) {
	uid, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("invalid uid %q: must be a positive integer", raw)
	}
	return uid, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
