package logic

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidReason is returned for an unknown stoppage reason.
	ErrInvalidReason = errors.New("invalid stoppage reason")
	// ErrSAPNotificationRequired is returned when a breakdown lacks a numeric ticket.
	ErrSAPNotificationRequired = errors.New("breakdown requires a numeric SAP notification number")
)

// ValidateClassification checks an operator-submitted reason. Breakdowns
// must carry a non-empty, digits-only SAP notification number.
func ValidateClassification(reason Reason, sapNotification string) error {
	if !reason.Valid() || reason == ReasonUnclassified {
		return ErrInvalidReason
	}
	if reason != ReasonBreakdown {
		return nil
	}
	if !isNumeric(sapNotification) {
		return ErrSAPNotificationRequired
	}
	return nil
}

func isNumeric(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}
