package domain

import (
	"encoding/json"
	"fmt"
)

// PostEnvelope is the JSON body of a post event. Data is delivered verbatim.
type PostEnvelope struct {
	Data *string `json:"data"`
}

// DecodePostBody extracts the payload from a post body. Anything that is not
// a JSON object with a string "data" member is ErrMalformedPayload.
func DecodePostBody(body []byte) ([]byte, error) {
	var env PostEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: missing data member", ErrMalformedPayload)
	}
	return []byte(*env.Data), nil
}
