// fec-tune prints delivery and reconstruction probability tables for
// candidate chunk sizes and redundancy ratios, so chunk-payload and ratio
// settings can be justified offline instead of guessed at runtime.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mcadvchat/meshtp/fec"
	"github.com/mcadvchat/meshtp/proto"
)

type TuneConfigure struct {
	Lambda     float64
	Ratio      float64
	MessageLen uint
	PayloadMin uint
	PayloadMax uint
	Step       uint
}

func parseConfigure() *TuneConfigure {
	config := &TuneConfigure{}

	flag.Float64Var(&config.Lambda, "lambda", fec.DEFAULT_LOSS_LAMBDA, "Channel parameter of the exponential loss model.")
	flag.Float64Var(&config.Ratio, "ratio", fec.DEFAULT_REDUNDANCY_RATIO, "Redundancy ratio n/k.")
	flag.UintVar(&config.MessageLen, "message-len", 47, "Message length in bytes.")
	flag.UintVar(&config.PayloadMin, "payload-min", 5, "Smallest chunk payload to evaluate.")
	flag.UintVar(&config.PayloadMax, "payload-max", 30, "Largest chunk payload to evaluate.")
	flag.UintVar(&config.Step, "step", 5, "Chunk payload step.")
	flag.Parse()

	if config.Ratio <= 1.0 {
		log.Println("Redundancy ratio too small. set to default.")
		config.Ratio = fec.DEFAULT_REDUNDANCY_RATIO
	}
	if config.Step == 0 {
		config.Step = 1
	}
	if config.PayloadMax > uint(proto.MaxPayloadFor(proto.CHANNEL_CEILING)) {
		config.PayloadMax = uint(proto.MaxPayloadFor(proto.CHANNEL_CEILING))
	}

	log.Println("Configure:")
	flag.VisitAll(func(fl *flag.Flag) {
		log.Println("\t-" + fl.Name + "=" + fl.Value.String())
	})
	return config
}

func main() {
	config := parseConfigure()

	fmt.Printf("message=%vB lambda=%v ratio=%v ceiling=%vB\n\n",
		config.MessageLen, config.Lambda, config.Ratio, proto.CHANNEL_CEILING)
	fmt.Println("payload  k    n    frame  Pe(frame)  P(chunk)   P(message)")

	for payload := config.PayloadMin; payload <= config.PayloadMax; payload += config.Step {
		k := int((config.MessageLen + payload - 1) / payload)
		if k == 0 {
			continue
		}
		n := fec.TotalCount(k, config.Ratio)

		// Envelope length of a full chunk at this payload size.
		env := &proto.ChunkEnvelope{Payload: make([]byte, payload)}
		frameLen := env.Len()

		pe := fec.DeliveryFailureProbability(frameLen, config.Lambda)
		p := 1 - pe
		success := fec.BlockSuccessProbability(n, k, p)

		fmt.Printf("%6dB  %-4d %-4d %4dB  %.6f   %.6f   %.6f\n",
			payload, k, n, frameLen, pe, p, success)
	}
}
