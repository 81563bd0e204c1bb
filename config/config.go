package config

import (
	"fmt"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"
)

// TransportConfigure carries the tunables of the fragmentation/FEC core.
// Durations are seconds unless noted.
type TransportConfigure struct {
	MaxChunkPayload   uint    `yaml:"max-chunk-payload,omitempty"`
	ChannelCeiling    uint    `yaml:"channel-ceiling,omitempty"`
	RedundancyRatio   float64 `yaml:"redundancy-ratio,omitempty"`
	ReassemblyTimeout uint    `yaml:"reassembly-timeout,omitempty"`
	HardTimeout       uint    `yaml:"hard-timeout,omitempty"`
	SweepPeriodMs     uint    `yaml:"sweep-period-ms,omitempty"`
	MaxOpenEntries    uint    `yaml:"max-open-entries,omitempty"`
	LossModelLambda   float64 `yaml:"loss-model-lambda,omitempty"`
	RetransmitMode    string  `yaml:"retransmit-mode,omitempty"`
}

type HTTPAPIConfigure struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

type UDPConfigure struct {
	ListenPort     uint   `yaml:"listen-port,omitempty"`
	TargetEndpoint string `yaml:"target-endpoint,omitempty"`
}

type GatewayConfigure struct {
	LogLevel uint   `yaml:"log-level,omitempty"`
	Callsign string `yaml:"callsign,omitempty"`

	UDP       UDPConfigure       `yaml:"udp,omitempty"`
	HTTP      HTTPAPIConfigure   `yaml:"http,omitempty"`
	Transport TransportConfigure `yaml:"transport,omitempty"`
}

// FromYAML loads a gateway configure document.
func FromYAML(path string) (*GatewayConfigure, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configure: %w", err)
	}
	cfg := &GatewayConfigure{}
	if err = yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse configure: %w", err)
	}
	return cfg, nil
}
