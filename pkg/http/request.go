package tlhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tasklane/tasklane/internal/model"
)

// MaxBodySize is the largest request body accepted.
const MaxBodySize = 1 << 20

// DecodeJSON decodes a single JSON value from the request body into dst.
// Unless allowUnknown is set, fields not present in dst are rejected.
// Failures are returned as validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowUnknown bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	if !allowUnknown {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr        *json.SyntaxError
			unmarshalTypeErr *json.UnmarshalTypeError
			maxBytesErr      *http.MaxBytesError
		)
		switch {
		case errors.As(err, &syntaxErr):
			return model.ErrValidation(fmt.Sprintf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset))
		case errors.Is(err, io.ErrUnexpectedEOF):
			return model.ErrValidation("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeErr):
			if unmarshalTypeErr.Field != "" {
				return model.ErrValidation(fmt.Sprintf("body contains incorrect JSON type for field %q", unmarshalTypeErr.Field))
			}
			return model.ErrValidation("body contains incorrect JSON type")
		case errors.Is(err, io.EOF):
			return model.ErrValidation("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return model.ErrValidation("body contains unknown field " + field)
		case errors.As(err, &maxBytesErr):
			return model.ErrValidation(fmt.Sprintf("body must not be larger than %d bytes", MaxBodySize))
		}
		return model.ErrValidation("invalid request body")
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.ErrValidation("body must only contain a single JSON value")
	}
	return nil
}
