package opensky

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  Value
	}{
		{`null`, Null()},
		{`"abc"`, String("abc")},
		{`""`, String("")},
		{`"été"`, String("été")},
		{`42`, Int(42)},
		{`-7`, Int(-7)},
		{`0`, Int(0)},
		{`42.0`, Float(42)},
		{`-3.25`, Float(-3.25)},
		{`1e3`, Float(1000)},
		{`1E-2`, Float(0.01)},
		{`99999999999999999999`, Float(1e20)},
		{`true`, Bool(true)},
		{`false`, Bool(false)},
		{`[1,2,3]`, Null()},
		{`{"a":1}`, Null()},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tt.input), &v); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Unmarshal(%s) = %#v (%s), want %#v (%s)", tt.input, v, v.Kind, tt.want, tt.want.Kind)
			}
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	if _, ok := String("x").AsInt(); ok {
		t.Error("String.AsInt() ok = true")
	}
	if _, ok := Float(1.5).AsInt(); ok {
		t.Error("Float(1.5).AsInt() ok = true")
	}
	if n, ok := Float(1700000000).AsInt(); !ok || n != 1700000000 {
		t.Errorf("Float(1700000000).AsInt() = %v, %v; want 1700000000, true", n, ok)
	}
	if _, ok := Float(1e19).AsInt(); ok {
		t.Error("Float(1e19).AsInt() ok = true, out of int64 range")
	}
	if _, ok := Float(math.Inf(1)).AsInt(); ok {
		t.Error("Float(+Inf).AsInt() ok = true")
	}
	if f, ok := Int(3).AsFloat(); !ok || f != 3 {
		t.Errorf("Int(3).AsFloat() = %v, %v; want 3, true", f, ok)
	}
	if _, ok := Bool(true).AsFloat(); ok {
		t.Error("Bool.AsFloat() ok = true")
	}
	if _, ok := Null().AsString(); ok {
		t.Error("Null.AsString() ok = true")
	}
	if b, ok := Bool(true).AsBool(); !ok || !b {
		t.Errorf("Bool(true).AsBool() = %v, %v", b, ok)
	}
}

func TestRawRecord_UnmarshalJSON(t *testing.T) {
	var rec RawRecord
	input := `["4b1815","SWR1TX  ","Switzerland",1700000000,1700000001,8.55,47.45,null,true,0,270.5,null,[123,456],null,"2000",false,0]`
	if err := json.Unmarshal([]byte(input), &rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(rec) != 17 {
		t.Fatalf("len = %d, want 17", len(rec))
	}
	if rec.At(1) != String("SWR1TX  ") {
		t.Errorf("At(1) = %#v", rec.At(1))
	}
	if rec.At(9) != Int(0) {
		t.Errorf("At(9) = %#v, want 0 as int", rec.At(9))
	}
	if !rec.At(12).IsNull() {
		t.Errorf("At(12) = %#v, want null for the sensors array", rec.At(12))
	}
}

func TestRawRecord_NonArrayDecodesEmpty(t *testing.T) {
	for _, input := range []string{`null`, `{"icao24":"abc"}`, `"abc"`, `17`} {
		rec := RawRecord{String("stale")}
		if err := json.Unmarshal([]byte(input), &rec); err != nil {
			t.Errorf("Unmarshal(%s) error = %v, want nil", input, err)
			continue
		}
		if len(rec) != 0 {
			t.Errorf("Unmarshal(%s) = %v, want empty record", input, rec)
		}
	}
}

func TestRawRecord_AtOutOfRange(t *testing.T) {
	rec := RawRecord{Int(1)}
	for _, i := range []int{-1, 1, 16, 1000} {
		if v := rec.At(i); !v.IsNull() {
			t.Errorf("At(%d) = %#v, want null", i, v)
		}
	}
}

func TestValue_MarshalRoundTripKeepsKind(t *testing.T) {
	rec := RawRecord{String("a"), Int(5), Float(5.5), Bool(true), Null()}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `["a",5,5.5,true,null]` {
		t.Errorf("Marshal() = %s", data)
	}
	if rec.String() != `["a", 5, 5.5, true, null]` {
		t.Errorf("String() = %s", rec.String())
	}
}
