package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// StrictDecodeError is returned when strict request decoding fails.
// It includes an optional Param field suitable for API error reporting.
type StrictDecodeError struct {
	Param   string
	Message string
}

func (e *StrictDecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s", e.Param, e.Message)
	}
	return e.Message
}

func strictErr(param, msg string) error {
	return &StrictDecodeError{Param: param, Message: msg}
}

// Validator is implemented by request bodies that check their own fields.
type Validator interface {
	Validate() error
}

// DecodeStrict decodes a single JSON object into v, rejecting unknown fields
// and trailing data, then runs v's Validate method.
func DecodeStrict[T any, PT interface {
	*T
	Validator
}](data []byte) (*T, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, strictErr("", "request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	out := PT(new(T))
	if err := dec.Decode(out); err != nil {
		return nil, translateDecodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, strictErr("", "request body must contain a single JSON object")
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return (*T)(out), nil
}

func translateDecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return strictErr(typeErr.Field, fmt.Sprintf("must be %s", typeErr.Type.String()))
	}
	msg := err.Error()
	if field, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		return strictErr(strings.Trim(field, `"`), "unknown field")
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return strictErr("", "malformed JSON")
	}
	return strictErr("", msg)
}

func requireText(param, v string) error {
	if strings.TrimSpace(v) == "" {
		return strictErr(param, param+" is required")
	}
	return nil
}

func requireImage(param string, img Image) error {
	if img.IsZero() {
		return strictErr(param, param+" is required")
	}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		return strictErr(param+".mime_type", "must be an image mime type")
	}
	return nil
}

func optionalImage(param string, img *Image) error {
	if img == nil {
		return nil
	}
	return requireImage(param, *img)
}
