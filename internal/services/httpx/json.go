package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
)

func decodeJSON(body []byte, target any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(body, target)
}
