// Command valvectl drives the valves of a planter over gRPC.
//
//	valvectl [-addr host:50051] list
//	valvectl [-addr host:50051] start <valve> <duration>
//	valvectl [-addr host:50051] stop <valve>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/LeonardoBeccarini/smart_planter/internal/services/device"
)

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func main() {
	addr := flag.String("addr", envOr("PLANTER_GRPC_ADDR", "localhost:50051"), "planter gRPC address")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: valvectl [flags] list | start <valve> <duration> | stop <valve>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := device.Dial(*addr)
	if err != nil {
		log.Fatalf("valvectl: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "list":
		list, err := c.ListValves(ctx)
		if err != nil {
			log.Fatalf("valvectl: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VALVE\tPIN\tPOSITION\tSENSOR\tTICKET")
		for _, v := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", v.Name, v.Pin, v.Position, v.Sensor, v.TicketID)
		}
		_ = w.Flush()
	case "start":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		d, err := time.ParseDuration(args[2])
		if err != nil {
			log.Fatalf("valvectl: bad duration %q: %v", args[2], err)
		}
		ticket, err := c.StartWatering(ctx, args[1], d)
		if err != nil {
			log.Fatalf("valvectl: %v", err)
		}
		fmt.Printf("watering %s for %s, ticket %s\n", args[1], d, ticket)
	case "stop":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		if err := c.StopWatering(ctx, args[1]); err != nil {
			log.Fatalf("valvectl: %v", err)
		}
		fmt.Printf("%s closed\n", args[1])
	default:
		flag.Usage()
		os.Exit(2)
	}
}
