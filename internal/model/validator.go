package model

import (
	"regexp"
	"sort"
	"strings"
)

var emailRegexp = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

// Validator collects the first failure message for each field.
type Validator struct {
	errors map[string]string
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(map[string]string),
	}
}

// CheckCond records msg for key unless cond holds.
func (v *Validator) CheckCond(cond bool, key, msg string) {
	if cond {
		return
	}
	if _, ok := v.errors[key]; !ok {
		v.errors[key] = msg
	}
}

// CheckEmail validates an email address.
func (v *Validator) CheckEmail(email string) {
	v.CheckCond(email != "", "email", "must be provided")
	v.CheckCond(emailRegexp.MatchString(email), "email", "must be a valid email address")
}

// CheckPassword validates a plaintext password. bcrypt ignores anything
// past 72 bytes, so longer passwords are rejected.
func (v *Validator) CheckPassword(key, password string) {
	v.CheckCond(password != "", key, "must be provided")
	v.CheckCond(len(password) >= 8, key, "must be at least 8 characters long")
	v.CheckCond(len(password) <= 72, key, "must be at most 72 characters long")
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) != 0
}

// Fields returns the failures keyed by field.
func (v *Validator) Fields() map[string]string {
	return v.errors
}

// Err returns a validation error describing every failed field, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	keys := make([]string, 0, len(v.errors))
	for key := range v.errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+v.errors[key])
	}
	return ErrValidation(strings.Join(parts, "; "))
}
