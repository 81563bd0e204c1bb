package gateway

import (
	"errors"
	"flag"
	"fmt"

	"github.com/mcadvchat/meshtp/config"
	"github.com/mcadvchat/meshtp/fec"
	"github.com/mcadvchat/meshtp/log"
	"github.com/mcadvchat/meshtp/proto"
	"github.com/mcadvchat/meshtp/transport"
	"github.com/mcadvchat/meshtp/utils/cmdline"
)

type GatewayOptions struct {
	ExternalConfig *cmdline.StringValue
	LogLevel       *cmdline.UintValue

	// Endpoint to bind and serve HTTP API and websocket.
	APIEndpoint *cmdline.NetEndpointValue

	// Local port receiving datagrams from the mesh node.
	UDPListenPort *cmdline.UintValue

	// Mesh node UDP endpoint.
	TargetEndpoint *cmdline.NetEndpointValue

	// Own station callsign, stamped on outbound messages.
	Callsign *cmdline.StringValue

	MaxChunkPayload   *cmdline.UintValue
	ChannelCeiling    *cmdline.UintValue
	RedundancyRatio   *cmdline.FloatValue
	ReassemblyTimeout *cmdline.UintValue
	HardTimeout       *cmdline.UintValue
	SweepPeriodMs     *cmdline.UintValue
	MaxOpenEntries    *cmdline.UintValue
	LossModelLambda   *cmdline.FloatValue
	RetransmitMode    *cmdline.StringValue
}

func (options *GatewayOptions) SetDefaultFromConfigure(cfg *config.GatewayConfigure) error {
	if options.LogLevel.IsDefault {
		options.LogLevel.Value = cfg.LogLevel
	}
	if options.Callsign.IsDefault && cfg.Callsign != "" {
		options.Callsign.Value = cfg.Callsign
	}
	if options.APIEndpoint.IsDefault && cfg.HTTP.Endpoint != "" {
		if err := options.APIEndpoint.Set(cfg.HTTP.Endpoint); err != nil {
			return err
		}
	}
	if options.UDPListenPort.IsDefault && cfg.UDP.ListenPort != 0 {
		options.UDPListenPort.Value = cfg.UDP.ListenPort
	}
	if options.TargetEndpoint.IsDefault && cfg.UDP.TargetEndpoint != "" {
		if err := options.TargetEndpoint.Set(cfg.UDP.TargetEndpoint); err != nil {
			return err
		}
	}
	if options.MaxChunkPayload.IsDefault && cfg.Transport.MaxChunkPayload != 0 {
		options.MaxChunkPayload.Value = cfg.Transport.MaxChunkPayload
	}
	if options.ChannelCeiling.IsDefault && cfg.Transport.ChannelCeiling != 0 {
		options.ChannelCeiling.Value = cfg.Transport.ChannelCeiling
	}
	if options.RedundancyRatio.IsDefault && cfg.Transport.RedundancyRatio != 0 {
		options.RedundancyRatio.Value = cfg.Transport.RedundancyRatio
	}
	if options.ReassemblyTimeout.IsDefault && cfg.Transport.ReassemblyTimeout != 0 {
		options.ReassemblyTimeout.Value = cfg.Transport.ReassemblyTimeout
	}
	if options.HardTimeout.IsDefault && cfg.Transport.HardTimeout != 0 {
		options.HardTimeout.Value = cfg.Transport.HardTimeout
	}
	if options.SweepPeriodMs.IsDefault && cfg.Transport.SweepPeriodMs != 0 {
		options.SweepPeriodMs.Value = cfg.Transport.SweepPeriodMs
	}
	if options.MaxOpenEntries.IsDefault && cfg.Transport.MaxOpenEntries != 0 {
		options.MaxOpenEntries.Value = cfg.Transport.MaxOpenEntries
	}
	if options.LossModelLambda.IsDefault && cfg.Transport.LossModelLambda != 0 {
		options.LossModelLambda.Value = cfg.Transport.LossModelLambda
	}
	if options.RetransmitMode.IsDefault && cfg.Transport.RetransmitMode != "" {
		options.RetransmitMode.Value = cfg.Transport.RetransmitMode
	}
	return nil
}

func (options *GatewayOptions) SetDefault() error {
	if options.TargetEndpoint.Host == "" {
		return errors.New("Mesh node endpoint should not be empty. (See \"-target\")")
	}
	if !options.TargetEndpoint.HasPort || options.TargetEndpoint.Port == 0 || options.TargetEndpoint.Port > 0xFFFF {
		return errors.New("Mesh node endpoint port should be specified. (See \"-target\")")
	}
	if options.UDPListenPort.Value == 0 || options.UDPListenPort.Value > 0xFFFF {
		return fmt.Errorf("UDP listen port should not be %v. (See \"-udp-listen\")", options.UDPListenPort.Value)
	}
	if options.ChannelCeiling.Value > proto.CHANNEL_CEILING {
		return fmt.Errorf("Channel ceiling cannot exceed %v bytes. (See \"-channel-ceiling\")", proto.CHANNEL_CEILING)
	}
	maxPayload := proto.MaxPayloadFor(int(options.ChannelCeiling.Value))
	if options.MaxChunkPayload.Value == 0 || int(options.MaxChunkPayload.Value) > maxPayload {
		return fmt.Errorf("Chunk payload should be within 1..%v bytes. (See \"-chunk-payload\")", maxPayload)
	}
	if options.RedundancyRatio.Value <= 1.0 {
		return errors.New("Redundancy ratio should be greater than 1.0. (See \"-redundancy-ratio\")")
	}
	if options.RetransmitMode.Value != transport.RETRANSMIT_CHUNKS && options.RetransmitMode.Value != transport.RETRANSMIT_BLOCK {
		return fmt.Errorf("Unknown retransmission mode \"%v\". (See \"-retransmit-mode\")", options.RetransmitMode.Value)
	}
	return nil
}

func configureParse() (*GatewayOptions, error) {
	var err error
	var api_endpoint, target_endpoint *cmdline.NetEndpointValue

	if api_endpoint, err = cmdline.NewNetEndpointValueDefault([]string{"tcp", "http", "https"}, "0.0.0.0:8981"); err != nil {
		log.Panicf("Flag value creating failure: %v", err.Error())
		return nil, err
	}
	if target_endpoint, err = cmdline.NewNetEndpointValueDefault([]string{"udp"}, "127.0.0.1:1799"); err != nil {
		log.Panicf("Flag value creating failure: %v", err.Error())
		return nil, err
	}

	options := &GatewayOptions{
		ExternalConfig:    cmdline.NewStringValue(),
		LogLevel:          cmdline.NewUintValueDefault(0),
		APIEndpoint:       api_endpoint,
		UDPListenPort:     cmdline.NewUintValueDefault(1798),
		TargetEndpoint:    target_endpoint,
		Callsign:          cmdline.NewStringValueDefault("N0CALL"),
		MaxChunkPayload:   cmdline.NewUintValueDefault(10),
		ChannelCeiling:    cmdline.NewUintValueDefault(proto.CHANNEL_CEILING),
		RedundancyRatio:   cmdline.NewFloatValueDefault(fec.DEFAULT_REDUNDANCY_RATIO),
		ReassemblyTimeout: cmdline.NewUintValueDefault(30),
		HardTimeout:       cmdline.NewUintValueDefault(300),
		SweepPeriodMs:     cmdline.NewUintValueDefault(1000),
		MaxOpenEntries:    cmdline.NewUintValueDefault(256),
		LossModelLambda:   cmdline.NewFloatValueDefault(fec.DEFAULT_LOSS_LAMBDA),
		RetransmitMode:    cmdline.NewStringValueDefault(transport.RETRANSMIT_CHUNKS),
	}

	flag.Var(options.ExternalConfig, "config", "Configure YAML.")
	flag.Var(options.LogLevel, "log-level", "Log level.")
	flag.Var(options.APIEndpoint, "endpoint", "HTTP API and websocket binding endpoint.")
	flag.Var(options.UDPListenPort, "udp-listen", "Local UDP port receiving node datagrams.")
	flag.Var(options.TargetEndpoint, "target", "Mesh node UDP endpoint.")
	flag.Var(options.Callsign, "callsign", "Own station callsign.")
	flag.Var(options.MaxChunkPayload, "chunk-payload", "Raw payload bytes per chunk.")
	flag.Var(options.ChannelCeiling, "channel-ceiling", "Channel byte budget per transmission.")
	flag.Var(options.RedundancyRatio, "redundancy-ratio", "Coded chunks per original chunk (n/k).")
	flag.Var(options.ReassemblyTimeout, "reassembly-timeout", "Reassembly inactivity timeout in seconds.")
	flag.Var(options.HardTimeout, "hard-timeout", "Reassembly lifetime ceiling in seconds.")
	flag.Var(options.SweepPeriodMs, "sweep-period", "Eviction sweep period in milliseconds.")
	flag.Var(options.MaxOpenEntries, "max-open-entries", "Cap on concurrently reassembling messages.")
	flag.Var(options.LossModelLambda, "loss-lambda", "Channel parameter of the loss model, offline tuning only.")
	flag.Var(options.RetransmitMode, "retransmit-mode", "Retransmission request granularity: chunk or block.")
	flag.Parse()

	if options.ExternalConfig.Value != "" {
		cfg, cerr := config.FromYAML(options.ExternalConfig.Value)
		if cerr != nil {
			return nil, cerr
		}
		if err = options.SetDefaultFromConfigure(cfg); err != nil {
			return nil, err
		}
	}
	if err = options.SetDefault(); err != nil {
		return nil, err
	}
	return options, nil
}
