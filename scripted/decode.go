package scripted

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeScript converts a loosely typed value (typically a map read from json) into a Script.
// Script values are returned unchanged. The result is not validated.
func DecodeScript(input any) (Script, error) {
	switch s := input.(type) {
	case Script:
		return s, nil
	case *Script:
		if s == nil {
			return Script{}, errors.New("nil script")
		}
		return *s, nil
	}

	var script Script
	err := decode(input, &script, false)
	if err != nil {
		return Script{}, err
	}
	return script, nil
}

// decode uses the json tags of `result` so that payloads decoded from json and typed values share one shape.
func decode(input any, result any, weak bool) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			floatToIntHookFunc(),
		),
		WeaklyTypedInput: weak,
		TagName:          "json",
		Result:           result,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return decoder.Decode(input)
}

// floatToIntHookFunc refuses to truncate json numbers into integer fields: 100.9 is an error rather than 100.
func floatToIntHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Float32 && from.Kind() != reflect.Float64 {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return data, nil
		}

		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", data)
		}
		// 2^63 is the first float64 that does not fit an int64
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%v is out of range", data)
		}
		return data, nil
	}
}
