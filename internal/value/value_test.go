package value

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check that all types implement Value.
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
}

func TestDecodePreservesIntegers(t *testing.T) {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"credit_used": 50, "limit": 3000}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	fields, err := DecodeFields(raw)
	require.NoError(t, err)

	assert.Equal(t, Int(50), fields["credit_used"])
	assert.Equal(t, Int(3000), fields["limit"])
}

func TestDecodeFloat(t *testing.T) {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"interest_rate_percent": 1.5}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	fields, err := DecodeFields(raw)
	require.NoError(t, err)

	assert.Equal(t, Float(1.5), fields["interest_rate_percent"])
}

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"null", nil, Null{}},
		{"string", "Alice", String("Alice")},
		{"bool", true, Bool(true)},
		{"int", json.Number("7"), Int(7)},
		{"float", json.Number("2.25"), Float(2.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsNestedStructures(t *testing.T) {
	_, err := Decode(map[string]any{"nested": "object"})
	assert.Error(t, err)

	_, err = Decode([]any{json.Number("1")})
	assert.Error(t, err)
}

func TestEqualCrossNumeric(t *testing.T) {
	assert.True(t, Equal(Int(5), Float(5.0)))
	assert.True(t, Equal(Float(5.0), Int(5)))
	assert.False(t, Equal(Int(5), Float(5.5)))
	assert.False(t, Equal(Int(5), String("5")))
	assert.True(t, Equal(Null{}, Null{}))
	assert.False(t, Equal(Null{}, Int(0)))
	assert.True(t, Equal(String("a"), String("a")))
	assert.False(t, Equal(Bool(true), Bool(false)))
}

func TestNumber(t *testing.T) {
	n, ok := Number(Int(42))
	assert.True(t, ok)
	assert.Equal(t, 42.0, n)

	n, ok = Number(Float(0.5))
	assert.True(t, ok)
	assert.Equal(t, 0.5, n)

	_, ok = Number(String("42"))
	assert.False(t, ok)

	_, ok = Number(Null{})
	assert.False(t, ok)
}

func TestMarshalFieldsSortedKeys(t *testing.T) {
	fields := map[string]Value{
		"zebra": Int(1),
		"apple": String("a"),
		"mid":   Null{},
	}

	out, err := MarshalFields(fields)
	require.NoError(t, err)
	assert.Equal(t, `{"apple":"a","mid":null,"zebra":1}`, string(out))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "", Display(Null{}))
	assert.Equal(t, "Alice", Display(String("Alice")))
	assert.Equal(t, "50", Display(Int(50)))
	assert.Equal(t, "1.5", Display(Float(1.5)))
	assert.Equal(t, "5000", Display(Float(5000)))
	assert.Equal(t, "true", Display(Bool(true)))
}

func TestCloneIsIndependent(t *testing.T) {
	orig := map[string]Value{"name": String("Alice")}
	cp := Clone(orig)
	cp["name"] = String("Bob")

	assert.Equal(t, String("Alice"), orig["name"])
}
