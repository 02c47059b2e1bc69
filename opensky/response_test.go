package opensky

import (
	"errors"
	"testing"
	"time"
)

func TestParseStates_ValidResponse(t *testing.T) {
	body := `{
		"time": 1700000010,
		"states": [
			["3c6444","DLH9LF  ","Germany",1700000000,1700000004,13.4,52.5,10972.8,false,231.2,84.5,-3.25,null,11277.6,"1000",false,0],
			["abc123",null,"Poland"],
			[]
		]
	}`

	states, err := ParseStates([]byte(body))
	if err != nil {
		t.Fatalf("ParseStates() error = %v", err)
	}

	if states.Time != 1700000010 {
		t.Errorf("Time = %d, want 1700000010", states.Time)
	}
	if !states.Timestamp().Equal(time.Unix(1700000010, 0)) {
		t.Errorf("Timestamp() = %v", states.Timestamp())
	}
	if len(states.Aircraft) != 3 {
		t.Fatalf("len(Aircraft) = %d, want 3 (no record is dropped)", len(states.Aircraft))
	}
	if got := len(states.Aircraft[0].SetFields()); got != FieldCount {
		t.Errorf("first record set fields = %d, want %d", got, FieldCount)
	}
	second := states.Aircraft[1]
	if second.Callsign != nil || *second.OriginCountry != "Poland" {
		t.Errorf("second record = %v, want callsign unset and country Poland", second.SetFields())
	}
	if got := len(states.Aircraft[2].SetFields()); got != 0 {
		t.Errorf("empty record set fields = %d, want 0", got)
	}
}

func TestParseStates_NullStatesIsEmpty(t *testing.T) {
	states, err := ParseStates([]byte(`{"time": 1700000000, "states": null}`))
	if err != nil {
		t.Fatalf("ParseStates() error = %v", err)
	}
	if len(states.Aircraft) != 0 {
		t.Errorf("len(Aircraft) = %d, want 0", len(states.Aircraft))
	}
}

func TestParseStates_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `<html>rate limited</html>`},
		{"array", `[[1,2,3]]`},
		{"null document", `null`},
		{"missing time", `{"states": []}`},
		{"null time", `{"time": null, "states": []}`},
		{"string time", `{"time": "now", "states": []}`},
		{"missing states", `{"time": 1700000000}`},
		{"states object", `{"time": 1700000000, "states": {"a": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStates([]byte(tt.body))
			if err == nil {
				t.Fatal("ParseStates() error = nil, want DecodeError")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error = %T (%v), want *DecodeError", err, err)
			}
			if !IsDecode(err) || IsTransport(err) {
				t.Errorf("IsDecode/IsTransport misclassified %v", err)
			}
		})
	}
}

func TestParseStates_BadRowsDoNotFailResponse(t *testing.T) {
	body := `{"time": 1, "states": [null, {"x": 1}, "row", ["ok"]]}`

	states, err := ParseStates([]byte(body))
	if err != nil {
		t.Fatalf("ParseStates() error = %v", err)
	}
	if len(states.Aircraft) != 4 {
		t.Fatalf("len(Aircraft) = %d, want 4", len(states.Aircraft))
	}
	if *states.Aircraft[3].ICAO24 != "ok" {
		t.Errorf("last record ICAO24 = %v, want ok", states.Aircraft[3].ICAO24)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{Op: "status", StatusCode: 429, Err: ErrStatus}

	if !errors.Is(err, ErrStatus) {
		t.Error("errors.Is(err, ErrStatus) = false")
	}
	if !IsTransport(err) {
		t.Error("IsTransport() = false")
	}
	want := "opensky transport: status: status 429: unexpected http status"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
