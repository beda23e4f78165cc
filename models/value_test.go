package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMetaValueRoundTripNested(t *testing.T) {
	original := NewObject(
		MetaField{Key: "title", Value: NewString("The Wire")},
		MetaField{Key: "year", Value: NewInt(2002)},
		MetaField{Key: "rating", Value: NewNumber(json.Number("8.6"))},
		MetaField{Key: "ended", Value: NewBool(true)},
		MetaField{Key: "tagline", Value: Null()},
		MetaField{Key: "genres", Value: NewList(NewString("crime"), NewString("drama"))},
		MetaField{Key: "ids", Value: NewObject(
			MetaField{Key: "imdb", Value: NewString("tt0306414")},
			MetaField{Key: "tmdb", Value: NewInt(1438)},
		)},
	)

	encoded, err := EncodeValue(original)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}

	decoded, err := DecodeValue(encoded)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\n  original: %#v\n  decoded:  %#v", original, decoded)
	}

	// Field order must survive the trip.
	reencoded, err := EncodeValue(decoded)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if encoded != reencoded {
		t.Errorf("canonical encoding not stable:\n  first:  %s\n  second: %s", encoded, reencoded)
	}
}

func TestMetaValuePreservesLargeNumbers(t *testing.T) {
	// float64 would lose precision on this; json.Number must not.
	decoded, err := DecodeValue(`{"runtime_ms":9007199254740993}`)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	v, ok := decoded.Field("runtime_ms")
	if !ok {
		t.Fatal("expected runtime_ms field")
	}
	n, ok := v.AsInt()
	if !ok {
		t.Fatalf("expected number, got kind %d", v.Kind)
	}
	if n != 9007199254740993 {
		t.Errorf("expected 9007199254740993, got %d", n)
	}
}

func TestMetaValueNullVariant(t *testing.T) {
	decoded, err := DecodeValue(`{"year":null}`)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	v, ok := decoded.Field("year")
	if !ok {
		t.Fatal("expected year field")
	}
	if !v.IsNull() {
		t.Errorf("expected null variant, got kind %d", v.Kind)
	}

	encoded, err := EncodeValue(decoded)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	if encoded != `{"year":null}` {
		t.Errorf("unexpected encoding %q", encoded)
	}
}

func TestMetaValueFieldLookup(t *testing.T) {
	obj := NewObject(
		MetaField{Key: "a", Value: NewInt(1)},
		MetaField{Key: "b", Value: NewString("two")},
	)
	if _, ok := obj.Field("missing"); ok {
		t.Error("expected missing field lookup to fail")
	}
	if s, ok := NewString("x").AsString(); !ok || s != "x" {
		t.Errorf("AsString failed: %q %v", s, ok)
	}
	if _, ok := NewString("x").Field("a"); ok {
		t.Error("Field on non-object should fail")
	}
}
