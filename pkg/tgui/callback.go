package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats callback data as "scope:action[:arg...]".
func Data(scope, action string, args ...string) string {
	parts := make([]string, 0, 2+len(args))
	parts = append(parts, strings.TrimSpace(scope), strings.TrimSpace(action))
	parts = append(parts, args...)
	return strings.Join(parts, ":")
}

// CheckedData is Data that fails when the result exceeds the platform limit.
func CheckedData(scope, action string, args ...string) (string, error) {
	d := Data(scope, action, args...)
	if len(d) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return d, nil
}

// Callback is parsed callback data.
type Callback struct {
	Scope  string
	Action string
	Args   []string
}

// Arg returns the i-th argument or "".
func (c Callback) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// ParseData splits "scope:action[:arg...]". ok is false when either
// scope or action is missing.
func ParseData(data string) (Callback, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Callback{}, false
	}
	return Callback{Scope: parts[0], Action: parts[1], Args: parts[2:]}, true
}
