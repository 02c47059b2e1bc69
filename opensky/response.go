package opensky

import (
	"bytes"
	"encoding/json"
	"time"
)

// States is one decoded API response. A newer States replaces an older one
// wholesale; they are never merged.
type States struct {
	// Time is the server timestamp of the snapshot, in unix seconds.
	Time int64 `json:"time"`

	// Aircraft holds one entry per wire record, in wire order.
	Aircraft []StateVector `json:"aircraft"`
}

// Timestamp returns Time as a [time.Time].
func (s States) Timestamp() time.Time {
	return time.Unix(s.Time, 0).UTC()
}

// ParseStates decodes a full response body of the form
// {"time": int, "states": [[...], ...]}.
//
// A missing "time" or "states" key, or a body that is not a JSON object,
// yields a [DecodeError]. "states": null is how the API reports an empty
// area and decodes to zero aircraft. Per-record problems never fail the
// parse.
func ParseStates(body []byte) (States, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return States{}, &DecodeError{Reason: "response is not a JSON object", Err: err}
	}
	if top == nil {
		return States{}, &DecodeError{Reason: "response is null"}
	}

	rawTime, ok := top["time"]
	if !ok || isNull(rawTime) {
		return States{}, &DecodeError{Reason: `missing "time"`}
	}
	var ts int64
	if err := json.Unmarshal(rawTime, &ts); err != nil {
		return States{}, &DecodeError{Reason: `"time" is not an integer`, Err: err}
	}

	rawStates, ok := top["states"]
	if !ok {
		return States{}, &DecodeError{Reason: `missing "states"`}
	}

	var records []RawRecord
	if !isNull(rawStates) {
		if err := json.Unmarshal(rawStates, &records); err != nil {
			return States{}, &DecodeError{Reason: `"states" is not an array`, Err: err}
		}
	}

	return States{Time: ts, Aircraft: Decode(records)}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
