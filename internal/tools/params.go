package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/brandon/mailsync/internal/config"
	apperrors "github.com/brandon/mailsync/internal/errors"
)

func invalid(format string, args ...interface{}) error {
	return apperrors.Mark(apperrors.ErrInvalidInput, fmt.Errorf(format, args...))
}

func stringParam(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", invalid("%s is required", name)
	}
	return v, nil
}

func optionalString(params map[string]interface{}, name, fallback string) string {
	if v, ok := params[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// uidParam accepts a JSON number or a decimal string
func uidParam(params map[string]interface{}, name string) (uint32, error) {
	switch v := params[name].(type) {
	case float64:
		if v < 1 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, invalid("invalid %s: %v", name, v)
		}
		return uint32(v), nil
	case string:
		uid, err := strconv.ParseUint(v, 10, 32)
		if err != nil || uid == 0 {
			return 0, invalid("invalid %s: %q", name, v)
		}
		return uint32(uid), nil
	case nil:
		return 0, invalid("%s is required", name)
	default:
		return 0, invalid("invalid %s: %v", name, v)
	}
}

// accountParam resolves account_id against the configured accounts
func accountParam(cfg *config.Config, params map[string]interface{}) (*config.AccountConfig, error) {
	id, err := stringParam(params, "account_id")
	if err != nil {
		return nil, err
	}
	return cfg.GetAccountByID(id)
}

// folderParam defaults to the account's active folder
func folderParam(acc *config.AccountConfig, params map[string]interface{}) string {
	return optionalString(params, "folder", acc.ActiveFolder)
}

func schemaProperty(kind, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        kind,
		"description": description,
	}
}

var (
	accountProperty = schemaProperty("string", "Account id (the mailbox address)")
	folderProperty  = schemaProperty("string", "Optional: Folder path, defaults to the account's active folder")
	uidProperty     = schemaProperty("integer", "Server UID of the message within the folder")
)
