package server

import (
	"errors"
	"strconv"
	"strings"
)

const defaultActivityDays = 7

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, errors.New("invalid_integer")
	}
	return &parsed, nil
}

func parseDays(value string) (int, error) {
	days, err := parseOptionalInt(value)
	if err != nil {
		return 0, newValidationError("days", "invalid_days", "days must be an integer")
	}
	if days == nil {
		return defaultActivityDays, nil
	}
	return *days, nil
}
