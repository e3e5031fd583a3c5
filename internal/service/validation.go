package service

import "regexp"

var (
	// Chat ids are signed; channels and supergroups are negative (-100...).
	chatIDPattern = regexp.MustCompile(`^-?[1-9][0-9]{0,19}$`)
	userIDPattern = regexp.MustCompile(`^[1-9][0-9]{0,19}$`)
	// Telegram usernames: 5-32 chars, letter first, letters/digits/underscore.
	handlePattern = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{4,31}$`)
)

// IsValidChannelID accepts a numeric chat id or an @username.
func IsValidChannelID(s string) bool {
	return chatIDPattern.MatchString(s) || handlePattern.MatchString(s)
}

// IsValidUserID accepts a positive numeric user id or an @username.
func IsValidUserID(s string) bool {
	return userIDPattern.MatchString(s) || handlePattern.MatchString(s)
}
