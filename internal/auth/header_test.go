package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_AuthorizationHeader(t *testing.T) {
	tt := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer A", "A", nil},
		{"Bearer 12345===", "12345===", nil},
		{"bearer abc.def.ghi", "abc.def.ghi", nil},
		{"Bearer        1456===", "1456===", nil},
		{"", "", ErrEmptyHeader},
		{"Bearer", "", ErrIncorrectHeaderFormat},
		{"Bearer ", "", ErrIncorrectHeaderFormat},
		{"Basic dXNlcjpwYXNz", "", ErrIncorrectHeaderFormat},
		{"Bearer a b", "", ErrIncorrectHeaderFormat},
		{"Bearer 😂😂", "", ErrInvalidHeaderToken},
	}

	for _, tc := range tt {
		t.Run(tc.header, func(t *testing.T) {
			token, err := ParseBearerAuthorizationHeader(tc.header)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, token)
		})
	}
}
