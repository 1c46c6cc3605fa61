package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/modbusaccess"
)

const defaultUploadIntervalSecs = 5

// RegisterConfig maps a field of an emitters data events onto a modbus register.
type RegisterConfig struct {
	Addr  uint16  `json:"addr"`
	Type  string  `json:"type"` // "float", "int32", "uint16" or "int16"
	Scale float64 `json:"scale"`
}

// ModbusConfig describes the modbus device face of an emitter.
type ModbusConfig struct {
	Listen       string                    `json:"listen"` // e.g. "0.0.0.0:5020"
	Table        string                    `json:"table"`  // "holding" (default) or "input", used when polling
	StartAddr    uint16                    `json:"startAddr"`
	NumRegisters uint16                    `json:"numRegisters"`
	Registers    map[string]RegisterConfig `json:"registers"`
}

// URL returns the url to serve modbus on.
func (m ModbusConfig) URL() string {
	return fmt.Sprintf("tcp://%s", m.Listen)
}

// RegisterBlock converts the configuration into a register block named `name`.
func (m ModbusConfig) RegisterBlock(name string) (modbusaccess.RegisterBlock, error) {
	block := modbusaccess.RegisterBlock{
		Name:         name,
		Table:        modbusaccess.Table(m.Table),
		StartAddr:    m.StartAddr,
		NumRegisters: m.NumRegisters,
		Registers:    make(map[string]modbusaccess.Register, len(m.Registers)),
	}
	switch block.Table {
	case modbusaccess.HoldingRegisters, modbusaccess.InputRegisters, "":
	default:
		return modbusaccess.RegisterBlock{}, fmt.Errorf("unknown register table '%s'", m.Table)
	}

	for key, register := range m.Registers {
		dataType, err := modbusaccess.TypeByName(register.Type)
		if err != nil {
			return modbusaccess.RegisterBlock{}, fmt.Errorf("register '%s': %w", key, err)
		}
		block.Registers[key] = modbusaccess.Register{
			StartAddr: register.Addr,
			DataType:  dataType,
			Scale:     register.Scale,
		}
	}

	err := block.Validate()
	if err != nil {
		return modbusaccess.RegisterBlock{}, err
	}
	return block, nil
}

type EmitterConfig struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Type              string         `json:"type"`
	EmitterProperties map[string]any `json:"emitterProperties"`
	AutoStart         bool           `json:"autoStart"`
	Modbus            *ModbusConfig  `json:"modbus"`
}

// EmitterDescription returns the description used to build the emitter through a provider.
func (e EmitterConfig) EmitterDescription() emitter.Description {
	return emitter.Description{
		ID:                e.ID,
		Name:              e.Name,
		Description:       e.Description,
		Type:              e.Type,
		EmitterProperties: e.EmitterProperties,
	}
}

type APIConfig struct {
	Listen string `json:"listen"` // the API is disabled when empty
}

type SupabaseConfig struct {
	Url string `json:"url"`
	// key is specified via env var
	Schema string `json:"schema"`
}

type DataPlatformConfig struct {
	UploadIntervalSecs int            `json:"uploadIntervalSecs"`
	BufferPath         string         `json:"bufferPath"`
	Supabase           SupabaseConfig `json:"supabase"`
}

// Enabled reports whether emitted events should be streamed to the data platform.
func (d DataPlatformConfig) Enabled() bool {
	return d.Supabase.Url != ""
}

func (d DataPlatformConfig) UploadInterval() time.Duration {
	if d.UploadIntervalSecs <= 0 {
		return defaultUploadIntervalSecs * time.Second
	}
	return time.Duration(d.UploadIntervalSecs) * time.Second
}

type StateStoreConfig struct {
	Path      string `json:"path"` // state is not persisted when empty
	Encrypted bool   `json:"encrypted"`
}

type Config struct {
	Emitters     []EmitterConfig    `json:"emitters"`
	API          APIConfig          `json:"api"`
	DataPlatform DataPlatformConfig `json:"dataPlatform"`
	StateStore   StateStoreConfig   `json:"stateStore"`

	Secrets Secrets `json:"-"`
}

func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	err = json.Unmarshal(content, &config)
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for mistakes that would otherwise only show once the emitters are running.
func (c Config) Validate() error {
	var errs []error

	if len(c.Emitters) == 0 {
		errs = append(errs, errors.New("no emitters configured"))
	}

	seen := make(map[string]bool, len(c.Emitters))
	listening := make(map[string]string)
	for i, e := range c.Emitters {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("emitter %d: missing id", i))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("emitter '%s': duplicate id", e.ID))
		}
		seen[e.ID] = true
		if e.Type == "" {
			errs = append(errs, fmt.Errorf("emitter '%s': missing type", e.ID))
		}
		if e.Modbus != nil {
			if e.Modbus.Listen == "" {
				errs = append(errs, fmt.Errorf("emitter '%s': missing modbus listen address", e.ID))
			} else if other, ok := listening[e.Modbus.Listen]; ok {
				errs = append(errs, fmt.Errorf("emitter '%s': modbus address %s already used by '%s'", e.ID, e.Modbus.Listen, other))
			} else {
				listening[e.Modbus.Listen] = e.ID
			}
			_, err := e.Modbus.RegisterBlock(e.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("emitter '%s': modbus: %w", e.ID, err))
			}
		}
	}

	if c.DataPlatform.Enabled() {
		if c.DataPlatform.BufferPath == "" {
			errs = append(errs, errors.New("data platform: missing buffer path"))
		}
		if c.Secrets.SupabaseKey == "" {
			errs = append(errs, errors.New("data platform: SUPABASE_KEY is not set"))
		}
	}

	if c.StateStore.Encrypted && c.StateStore.Path != "" {
		if c.Secrets.StateKey == "" || c.Secrets.StateIV == "" {
			errs = append(errs, errors.New("state store: SCRIPTED_EMITTER_STATE_KEY and SCRIPTED_EMITTER_STATE_IV must be set for encryption"))
		}
	}

	return errors.Join(errs...)
}

// StateFormat returns the settings used to serialize the state of an emitter of `emitterType`.
func (c Config) StateFormat(emitterType string) emitter.FormatSettings {
	settings := emitter.FormatSettings{
		Encrypted: c.StateStore.Encrypted,
		Type:      emitterType,
	}
	if settings.Encrypted {
		settings.Algorithm = emitter.AlgorithmAES256GCM
		settings.Key = c.Secrets.StateKey
		settings.IV = c.Secrets.StateIV
	}
	return settings
}
