package modbusaccess

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrUnknownType = errors.New("unknown register type")

// Table selects which modbus register table a block lives in.
type Table string

const (
	HoldingRegisters Table = "holding"
	InputRegisters   Table = "input"
)

// Type represents the different types of data that can be exchanged over modbus.
// All values are handled as float64 at the edges, the type decides how they are laid out in registers.
type Type struct {
	name          string                        // the name of the data type
	dataLength    uint16                        // the number of underlying bytes to represent the data type
	fromBytesFunc func([]byte) float64          // function to convert the bytes to a value (used to poll)
	toBytesFunc   func(float64) ([]byte, error) // function to convert a value into bytes (used to serve)
}

func (t Type) Name() string { return t.name }

// NumRegisters returns the number of 16 bit registers occupied by the type.
func (t Type) NumRegisters() uint16 { return t.dataLength / 2 }

// FloatType represents the 32 bit IEEE float data type.
var FloatType = Type{
	name:       "float",
	dataLength: 4,
	fromBytesFunc: func(bytes []byte) float64 {
		valUint32 := binary.BigEndian.Uint32(bytes)
		return float64(math.Float32frombits(valUint32))
	},
	toBytesFunc: func(val float64) ([]byte, error) {
		bytes := make([]byte, 4)
		binary.BigEndian.PutUint32(bytes, math.Float32bits(float32(val)))
		return bytes, nil
	},
}

// Int32Type represents the 32 bit signed integer data type on Modbus.
var Int32Type = Type{
	name:       "int32",
	dataLength: 4,
	fromBytesFunc: func(bytes []byte) float64 {
		return float64(int32(binary.BigEndian.Uint32(bytes)))
	},
	toBytesFunc: func(val float64) ([]byte, error) {
		rounded := math.Round(val)
		if rounded < math.MinInt32 || rounded > math.MaxInt32 {
			return nil, fmt.Errorf("%v overflows int32", val)
		}
		bytes := make([]byte, 4)
		binary.BigEndian.PutUint32(bytes, uint32(int32(rounded)))
		return bytes, nil
	},
}

// Uint16Type represents the 16 bit unsigned integer data type on Modbus.
var Uint16Type = Type{
	name:       "uint16",
	dataLength: 2,
	fromBytesFunc: func(bytes []byte) float64 {
		return float64(binary.BigEndian.Uint16(bytes))
	},
	toBytesFunc: func(val float64) ([]byte, error) {
		rounded := math.Round(val)
		if rounded < 0 || rounded > math.MaxUint16 {
			return nil, fmt.Errorf("%v overflows uint16", val)
		}
		bytes := make([]byte, 2)
		binary.BigEndian.PutUint16(bytes, uint16(rounded))
		return bytes, nil
	},
}

// Int16Type represents the 16 bit signed integer data type on Modbus.
var Int16Type = Type{
	name:       "int16",
	dataLength: 2,
	fromBytesFunc: func(bytes []byte) float64 {
		return float64(int16(binary.BigEndian.Uint16(bytes)))
	},
	toBytesFunc: func(val float64) ([]byte, error) {
		rounded := math.Round(val)
		if rounded < math.MinInt16 || rounded > math.MaxInt16 {
			return nil, fmt.Errorf("%v overflows int16", val)
		}
		bytes := make([]byte, 2)
		binary.BigEndian.PutUint16(bytes, uint16(int16(rounded)))
		return bytes, nil
	},
}

var typesByName = map[string]Type{
	FloatType.name:  FloatType,
	Int32Type.name:  Int32Type,
	Uint16Type.name: Uint16Type,
	Int16Type.name:  Int16Type,
}

// TypeByName looks up a data type by the name used in configuration files, e.g. "float".
func TypeByName(name string) (Type, error) {
	t, ok := typesByName[name]
	if !ok {
		return Type{}, fmt.Errorf("%w '%s'", ErrUnknownType, name)
	}
	return t, nil
}

// Register holds a value on the modbus server at the given address
type Register struct {
	StartAddr uint16
	DataType  Type
	Scale     float64 // values are multiplied by Scale when served and divided when polled, zero means no scaling
}

func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// RegisterBlock represents a contigous block of modbus registers that are read in one chunk.
type RegisterBlock struct {
	Name         string              // name of the block used for context/logging
	Table        Table               // the register table the block is read from, defaults to holding registers
	StartAddr    uint16              // the first register address of the block
	NumRegisters uint16              // the number of registers in this block (each register is two bytes)
	Registers    map[string]Register // details of all the registers of interest in this block, keyed by unique name
}

// Contains reports whether the `quantity` registers starting at `addr` all lie within the block.
func (b RegisterBlock) Contains(addr, quantity uint16) bool {
	start := int(b.StartAddr)
	end := start + int(b.NumRegisters)
	return int(addr) >= start && int(addr)+int(quantity) <= end
}

// Validate checks that every register fits inside the block.
func (b RegisterBlock) Validate() error {
	for key, register := range b.Registers {
		if register.DataType.dataLength == 0 {
			return fmt.Errorf("register '%s': %w", key, ErrUnknownType)
		}
		if !b.Contains(register.StartAddr, register.DataType.NumRegisters()) {
			return fmt.Errorf("register configuration for '%s' exceeds block", key)
		}
	}
	return nil
}

// registerOffset returns the offset in bytes of the register within a block of bytes, after a sanity check of the
// configuration to avoid out of bound panics.
func registerOffset(block RegisterBlock, key string, register Register, blockLen int) (int, error) {
	offset := (int(register.StartAddr) - int(block.StartAddr)) * 2 // registers are two bytes long
	if offset < 0 {
		return 0, fmt.Errorf("register configuration for '%s' preceeds block", key)
	}
	if offset+int(register.DataType.dataLength) > blockLen {
		return 0, fmt.Errorf("register configuration for '%s' exceeds block", key)
	}
	return offset, nil
}
