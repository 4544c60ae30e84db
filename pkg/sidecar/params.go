package sidecar

import (
	"encoding/json"
	"errors"
)

var errNoParams = errors.New("sidecar: request carries no params")

func unmarshalParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return errNoParams
	}
	return json.Unmarshal(raw, dst)
}
