package modbusaccess

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/grid-x/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves reads from a fixed register image that starts at address zero.
type fakeClient struct {
	modbus.Client
	holding []uint16
	input   []uint16
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return read(f.holding, address, quantity)
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return read(f.input, address, quantity)
}

func read(image []uint16, address, quantity uint16) ([]byte, error) {
	if int(address)+int(quantity) > len(image) {
		return nil, errors.New("illegal data address")
	}
	bytes := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(bytes[i*2:], image[int(address)+i])
	}
	return bytes, nil
}

var testBlock = RegisterBlock{
	Name:         "test",
	StartAddr:    0,
	NumRegisters: 8,
	Registers: map[string]Register{
		"voltage":     {StartAddr: 0, DataType: FloatType},
		"temperature": {StartAddr: 2, DataType: Int16Type, Scale: 10},
		"mode":        {StartAddr: 3, DataType: Uint16Type},
		"power":       {StartAddr: 4, DataType: Int32Type},
		"frequency":   {StartAddr: 6, DataType: FloatType},
	},
}

func TestEncodeThenPoll(t *testing.T) {
	registers, err := EncodeBlock(testBlock, map[string]any{
		"voltage":     230.5,
		"temperature": -12.3,
		"mode":        3,
		"power":       int64(-150000),
		"frequency":   "not a number",
		"unmapped":    1.0,
	})
	require.NoError(t, err)
	require.Len(t, registers, 8)
	assert.Equal(t, uint16(0), registers[6], "non numeric values are left at zero")

	client := &fakeClient{holding: registers}
	metrics, err := PollBlock(client, testBlock)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{
		"voltage":     230.5,
		"temperature": -12.3,
		"mode":        3,
		"power":       -150000,
		"frequency":   0,
	}, metrics)
}

func TestPollBlock_InputRegisters(t *testing.T) {
	block := RegisterBlock{
		Name:         "input",
		Table:        InputRegisters,
		StartAddr:    1,
		NumRegisters: 1,
		Registers:    map[string]Register{"mode": {StartAddr: 1, DataType: Uint16Type}},
	}
	client := &fakeClient{input: []uint16{0, 42}}

	metrics, err := PollBlocks(client, []RegisterBlock{block})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"mode": 42}, metrics)

	block.Table = "coils"
	_, err = PollBlock(client, block)
	assert.ErrorContains(t, err, "unknown register table")
}

func TestEncodeBlock_Errors(t *testing.T) {
	tests := []struct {
		name        string
		block       RegisterBlock
		values      map[string]any
		expectedErr string
	}{
		{
			name: "uint16 overflow",
			block: RegisterBlock{NumRegisters: 1, Registers: map[string]Register{
				"mode": {StartAddr: 0, DataType: Uint16Type},
			}},
			values:      map[string]any{"mode": 70000.0},
			expectedErr: "encode 'mode': 70000 overflows uint16",
		},
		{
			name: "negative uint16",
			block: RegisterBlock{NumRegisters: 1, Registers: map[string]Register{
				"mode": {StartAddr: 0, DataType: Uint16Type},
			}},
			values:      map[string]any{"mode": -1},
			expectedErr: "overflows uint16",
		},
		{
			name: "register exceeds block",
			block: RegisterBlock{NumRegisters: 1, Registers: map[string]Register{
				"power": {StartAddr: 0, DataType: FloatType},
			}},
			expectedErr: "register configuration for 'power' exceeds block",
		},
		{
			name: "register preceeds block",
			block: RegisterBlock{StartAddr: 10, NumRegisters: 2, Registers: map[string]Register{
				"power": {StartAddr: 9, DataType: Int16Type},
			}},
			expectedErr: "register configuration for 'power' preceeds block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeBlock(tt.block, tt.values)
			assert.ErrorContains(t, err, tt.expectedErr)
		})
	}
}

func TestTypeByName(t *testing.T) {
	for _, name := range []string{"float", "int32", "uint16", "int16"} {
		typ, err := TypeByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.Name())
	}

	_, err := TypeByName("string32")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegisterBlock_Validate(t *testing.T) {
	assert.NoError(t, testBlock.Validate())

	assert.True(t, testBlock.Contains(0, 8))
	assert.False(t, testBlock.Contains(7, 2))

	invalid := RegisterBlock{NumRegisters: 2, Registers: map[string]Register{"x": {StartAddr: 1, DataType: Int32Type}}}
	assert.ErrorContains(t, invalid.Validate(), "exceeds block")

	untyped := RegisterBlock{NumRegisters: 2, Registers: map[string]Register{"x": {StartAddr: 0}}}
	assert.ErrorIs(t, untyped.Validate(), ErrUnknownType)
}
