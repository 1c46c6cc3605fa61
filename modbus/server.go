package modbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/modbusaccess"
	"github.com/cepro/scriptedemitter/telemetry"
	"github.com/simonvetter/modbus"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxClients = 5
)

// Server exposes the latest data event of an emitter as modbus registers, so that an emitter can stand in for a real
// device on the network.
// It hides the underlying open source modbus library and maps data fields to their assigned registers.
//
// The register image is served read-only on both the holding and input register tables.
type Server struct {
	url   string
	block modbusaccess.RegisterBlock

	mu    sync.RWMutex
	image []uint16 // nil until the first data event has been encoded

	subServer *modbus.ModbusServer // the raw server of the underlying modbus library we are using
	logger    *slog.Logger
}

// NewServer returns a server that will listen on `url` (e.g. "tcp://0.0.0.0:5020") and serve `block`.
func NewServer(url string, block modbusaccess.RegisterBlock) (*Server, error) {
	err := block.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid register block '%s': %w", block.Name, err)
	}

	s := &Server{
		url:    url,
		block:  block,
		logger: slog.Default().With("url", url, "block", block.Name),
	}

	subServer, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    defaultTimeout,
		MaxClients: defaultMaxClients,
	}, &requestHandler{server: s})
	if err != nil {
		return nil, fmt.Errorf("create modbus server: %w", err)
	}
	s.subServer = subServer

	return s, nil
}

// Attach updates the register image with every data event of `e`, and returns a function that detaches again.
func (s *Server) Attach(e emitter.DataEmitter) (detach func()) {
	return e.AddDataListener(emitter.DataListenerFunc(func(evt telemetry.DataEvent) {
		err := s.Update(evt)
		if err != nil {
			s.logger.Warn("Failed to encode data event", "emitter_id", e.ID(), "error", err)
		}
	}))
}

// Update replaces the register image with the fields of `evt`. On error the previous image is kept.
func (s *Server) Update(evt telemetry.DataEvent) error {
	image, err := modbusaccess.EncodeBlock(s.block, evt.Data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = image
	return nil
}

// Run serves requests until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.subServer.Start()
	if err != nil {
		return fmt.Errorf("start modbus server: %w", err)
	}
	s.logger.Info("Serving modbus")

	<-ctx.Done()

	err = s.subServer.Stop()
	if err != nil {
		return fmt.Errorf("stop modbus server: %w", err)
	}
	return nil
}

// read returns `quantity` registers from `addr` of the current image.
func (s *Server) read(addr, quantity uint16) ([]uint16, error) {
	if !s.block.Contains(addr, quantity) {
		return nil, modbus.ErrIllegalDataAddress
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.image == nil {
		return nil, modbus.ErrServerDeviceBusy
	}

	offset := addr - s.block.StartAddr
	res := make([]uint16, quantity)
	copy(res, s.image[offset:offset+quantity])
	return res, nil
}

// requestHandler implements the request handling interface of the underlying modbus library.
type requestHandler struct {
	server *Server
}

func (h *requestHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *requestHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *requestHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		h.server.logger.Debug("Refused register write", "client", req.ClientAddr, "addr", req.Addr)
		return nil, modbus.ErrIllegalFunction
	}
	return h.server.read(req.Addr, req.Quantity)
}

func (h *requestHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return h.server.read(req.Addr, req.Quantity)
}
