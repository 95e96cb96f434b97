package auth

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyHeader represents an empty header.
	ErrEmptyHeader = errors.New("empty header")

	// ErrIncorrectHeaderFormat means the formatting of the header was incorrect.
	ErrIncorrectHeaderFormat = errors.New("incorrect header format")

	// ErrInvalidHeaderToken means an invalid character was present in the auth token.
	ErrInvalidHeaderToken = errors.New("invalid token characters")
)

// validTokenRegex matches only valid b64token characters.
var validTokenRegex = regexp.MustCompile(`^[a-zA-Z0-9-._~+/]+=*$`)

// ParseBearerAuthorizationHeader parses the Authorization header field
// and returns the bearer token, if present and well-formed.
//
// The Authorization header should be in the form (RFC6750 2.1)
// b64token    = 1*( ALPHA / DIGIT /
// 					"-" / "." / "_" / "~" / "+" / "/" ) *"="
// credentials = "Bearer" 1*SP b64token
func ParseBearerAuthorizationHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrEmptyHeader
	}
	fields := strings.Fields(authHeader)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", ErrIncorrectHeaderFormat
	}

	token := fields[1]
	if !validTokenRegex.MatchString(token) {
		return "", ErrInvalidHeaderToken
	}
	return token, nil
}
