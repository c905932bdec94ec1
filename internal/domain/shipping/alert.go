package shipping

import "fmt"

// AlertLevel is the severity of a user-facing alert.
type AlertLevel string

const (
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
)

// IsValid returns true if the level is known
func (l AlertLevel) IsValid() bool {
	switch l {
	case AlertLevelInfo, AlertLevelWarning, AlertLevelError:
		return true
	default:
		return false
	}
}

// String returns the string representation of AlertLevel
func (l AlertLevel) String() string {
	return string(l)
}

// Alert is a non-fatal message for the ERP user. Carrier failures are
// reported as alerts and the host decides how to display them.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message"`
}

// InfoAlert creates an info level alert.
func InfoAlert(format string, args ...any) Alert {
	return Alert{Level: AlertLevelInfo, Message: fmt.Sprintf(format, args...)}
}

// WarningAlert creates a warning level alert.
func WarningAlert(format string, args ...any) Alert {
	return Alert{Level: AlertLevelWarning, Message: fmt.Sprintf(format, args...)}
}

// ErrorAlert creates an error level alert describing a failed action,
// e.g. ErrorAlert("fetching SendCloud prices", err).
func ErrorAlert(action string, err error) Alert {
	msg := fmt.Sprintf("Error occurred while %s", action)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return Alert{Level: AlertLevelError, Message: msg}
}

// WithTitle returns a copy of the alert with a title.
func (a Alert) WithTitle(title string) Alert {
	a.Title = title
	return a
}
