package main

import (
	"fmt"
	"time"

	"github.com/cepro/scriptedemitter/modbusaccess"
	"github.com/grid-x/modbus"
	"github.com/spf13/cobra"
)

var pollFlags struct {
	host     string
	addr     uint16
	dataType string
	table    string
	scale    float64
	slaveID  uint8
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Read one register from the modbus face of a running emitter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataType, err := modbusaccess.TypeByName(pollFlags.dataType)
		if err != nil {
			return err
		}
		block := modbusaccess.RegisterBlock{
			Name:         "poll",
			Table:        modbusaccess.Table(pollFlags.table),
			StartAddr:    pollFlags.addr,
			NumRegisters: dataType.NumRegisters(),
			Registers: map[string]modbusaccess.Register{
				"value": {StartAddr: pollFlags.addr, DataType: dataType, Scale: pollFlags.scale},
			},
		}

		handler := modbus.NewTCPClientHandler(pollFlags.host)
		handler.Timeout = 5 * time.Second
		handler.SlaveID = pollFlags.slaveID
		err = handler.Connect()
		if err != nil {
			return fmt.Errorf("connect to %s: %w", pollFlags.host, err)
		}
		defer handler.Close()

		metrics, err := modbusaccess.PollBlock(modbus.NewClient(handler), block)
		if err != nil {
			return fmt.Errorf("poll %s: %w", pollFlags.host, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", metrics["value"])
		return nil
	},
}

func init() {
	pollCmd.Flags().StringVar(&pollFlags.host, "host", "localhost:5020", "modbus host and port")
	pollCmd.Flags().Uint16Var(&pollFlags.addr, "addr", 0, "register address")
	pollCmd.Flags().StringVar(&pollFlags.dataType, "type", "float", "register type: float, int32, uint16 or int16")
	pollCmd.Flags().StringVar(&pollFlags.table, "table", "holding", "register table: holding or input")
	pollCmd.Flags().Float64Var(&pollFlags.scale, "scale", 0, "divide the raw value by this factor")
	pollCmd.Flags().Uint8Var(&pollFlags.slaveID, "slave-id", 1, "modbus unit id")
	rootCmd.AddCommand(pollCmd)
}
