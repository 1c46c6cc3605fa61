package modbusaccess

import (
	"fmt"
	"maps"

	"github.com/grid-x/modbus"
)

// PollBlocks reads all the register `blocks` from the `client` and returns a map of the parsed values, keyed by metric name.
func PollBlocks(client modbus.Client, blocks []RegisterBlock) (map[string]float64, error) {

	allMetrics := make(map[string]float64)

	for _, block := range blocks {
		blockMetrics, err := PollBlock(client, block)
		if err != nil {
			return nil, fmt.Errorf("poll block '%s': %w", block.Name, err)
		}
		maps.Copy(allMetrics, blockMetrics)
	}

	return allMetrics, nil
}

// PollBlock reads a single register `block` from the `client` and returns a map of the parsed values, keyed by metric name.
func PollBlock(client modbus.Client, block RegisterBlock) (map[string]float64, error) {

	// read the whole block of bytes from the modbus device
	var bytes []byte
	var err error
	switch block.Table {
	case InputRegisters:
		bytes, err = client.ReadInputRegisters(block.StartAddr, block.NumRegisters)
	case HoldingRegisters, "":
		bytes, err = client.ReadHoldingRegisters(block.StartAddr, block.NumRegisters)
	default:
		return nil, fmt.Errorf("unknown register table '%s'", block.Table)
	}
	if err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}

	// extract each metric of interest from the block of bytes
	metrics := make(map[string]float64, len(block.Registers))
	for key, register := range block.Registers {

		offset, err := registerOffset(block, key, register, len(bytes))
		if err != nil {
			return nil, err
		}

		// grab the relevant bytes for this metric from the block of bytes
		registerBytes := bytes[offset:(offset + int(register.DataType.dataLength))]

		// convert the bytes into a value and undo any scaling applied for transmission
		metrics[key] = register.DataType.fromBytesFunc(registerBytes) / register.scale()
	}

	return metrics, nil
}
