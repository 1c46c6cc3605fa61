package modbusaccess

import (
	"encoding/binary"
	"fmt"
)

// EncodeBlock lays `values` out into the register image of `block`, the inverse of PollBlock.
// Registers without a value, or with a value that is not numeric, are left at zero. The returned slice holds
// NumRegisters registers, the first of which is at the block's StartAddr.
func EncodeBlock(block RegisterBlock, values map[string]any) ([]uint16, error) {

	bytes := make([]byte, int(block.NumRegisters)*2)

	for key, register := range block.Registers {
		offset, err := registerOffset(block, key, register, len(bytes))
		if err != nil {
			return nil, err
		}

		val, ok := toFloat64(values[key])
		if !ok {
			continue
		}

		registerBytes, err := register.DataType.toBytesFunc(val * register.scale())
		if err != nil {
			return nil, fmt.Errorf("encode '%s': %w", key, err)
		}
		copy(bytes[offset:], registerBytes)
	}

	// Each register is a uint16, convert from the byte array
	registers := make([]uint16, block.NumRegisters)
	for i := range registers {
		loc := i * 2
		registers[i] = binary.BigEndian.Uint16(bytes[loc : loc+2])
	}

	return registers, nil
}

// toFloat64 converts the numeric types that turn up in decoded data events.
func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
