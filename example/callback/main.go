package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sorenkai/telewire/pkg/telewire"
)

func main() {
	flow, err := telewire.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callback := func(packet *telewire.Packet) error {
		fmt.Printf("%s seq=%d status=%s readings=%d\n",
			packet.Timestamp.Format(time.RFC3339Nano),
			packet.Sequence,
			packet.Health.Status,
			len(packet.SensorReadings),
		)
		return nil
	}

	if err := flow.Run(ctx, telewire.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
