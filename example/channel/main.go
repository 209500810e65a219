package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sorenkai/telewire"
)

func main() {
	flow, err := telewire.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, packets, closePackets := telewire.NewChannelSink("fanout", 32)
	defer closePackets()

	go fanoutWorker("ingest", packets)

	if err := flow.Run(ctx, telewire.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, packets <-chan *telewire.Packet) {
	for packet := range packets {
		fmt.Printf("[%s] forwarding packet seq=%d with %d readings at %s\n",
			name, packet.Sequence, len(packet.SensorReadings), time.Now().Format(time.RFC3339))
	}
}
