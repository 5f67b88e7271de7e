package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	digitsOnly      = regexp.MustCompile(`^\d+$`)
	unsafeTeamChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f<>"'\\|]`)
)

// MaxMessageLength is the transport's hard cap on message text.
const MaxMessageLength = 4096

// ValidateUserID accepts the numeric subscriber handle (5-15 digits).
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is empty")
	}
	if !digitsOnly.MatchString(userID) {
		return errors.New("user id must be numeric")
	}
	if len(userID) < 5 || len(userID) > 15 {
		return errors.New("user id must be 5-15 digits")
	}
	return nil
}

// ValidateTeamName accepts 1-50 characters with no control or markup-unsafe
// characters. International names pass.
func ValidateTeamName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("team name is empty")
	}
	if utf8.RuneCountInString(name) > 50 {
		return errors.New("team name exceeds 50 characters")
	}
	if unsafeTeamChars.MatchString(name) {
		return errors.New("team name contains unsafe characters")
	}
	return nil
}

// ValidateMessage checks rendered alert text against the transport limit.
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message is empty")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	return nil
}
