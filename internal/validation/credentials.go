package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	UsernameMaxLen = 64
	// bcrypt ignores input past 72 bytes.
	PasswordMaxBytes = 72
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameTooLong  = errors.New("username too long")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordTooLong  = errors.New("password too long")
)

// ValidateUsername trims and bounds a username. Returns the trimmed value.
func ValidateUsername(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrUsernameRequired
	}
	if utf8.RuneCountInString(s) > UsernameMaxLen {
		return "", ErrUsernameTooLong
	}
	return s, nil
}

// ValidatePassword rejects empty and over-long passwords. Passwords are not trimmed.
func ValidatePassword(input string) error {
	if input == "" {
		return ErrPasswordRequired
	}
	if len(input) > PasswordMaxBytes {
		return ErrPasswordTooLong
	}
	return nil
}
