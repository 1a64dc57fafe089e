package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
)

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseOptionalStatus(value string) (*invoicedomain.Status, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return nil, nil
	}
	status := invoicedomain.Status(trimmed)
	if !status.Valid() {
		return nil, invoicedomain.ErrInvalidStatus
	}
	return &status, nil
}
