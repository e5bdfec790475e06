// Package transfer provides the transfer collaborators the fetch client
// runs against: a real HTTP transfer and a simulated one for tests and
// local runs. The variant is selected by configuration.
package transfer

import (
	"fmt"

	"github.com/RNFS/fetchpipe/pkg/client"
)

// Kind names a transfer variant.
type Kind string

const (
	// KindHTTP performs real HTTP GET transfers.
	KindHTTP Kind = "http"

	// KindSim simulates transfers with configurable latency and failure
	// rate.
	KindSim Kind = "sim"
)

// Config selects and parameterizes a transfer variant.
type Config struct {
	Kind Kind

	// HTTP variant.
	UserAgent string

	// Sim variant.
	Sim SimConfig
}

// New builds the configured transfer variant.
func New(cfg Config) (client.Transferer, error) {
	switch cfg.Kind {
	case KindHTTP:
		return NewHTTP(cfg.UserAgent), nil
	case KindSim:
		return NewSim(cfg.Sim)
	default:
		return nil, fmt.Errorf("unknown transfer kind %q", cfg.Kind)
	}
}
