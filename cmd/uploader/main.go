package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/freekieb7/loam/telemetry"
	"github.com/freekieb7/loam/uploader"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	flags := flag.NewFlagSet("uploader", flag.ContinueOnError)
	server := flags.String("server", "http://127.0.0.1:8080", "base URL of the loam server")
	chunkSize := flags.Int("chunk-size", uploader.DefaultChunkSize, "bytes per chunk request")
	endpoint := flags.String("otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "OTLP/gRPC collector URL")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("usage: uploader [-server URL] FILE...")
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "loam-uploader", Endpoint: *endpoint})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	client := uploader.NewClient(*server)
	client.ChunkSize = *chunkSize

	results, err := client.Upload(ctx, flags.Args()...)
	for _, result := range results {
		if result.Announcement.Existed {
			fmt.Printf("%s: exists as %s\n", result.Path, result.Announcement.Path)
			continue
		}
		fmt.Printf("%s: %d of %d bytes sent to %s\n", result.Path, result.Sent, result.Announcement.Size, result.Announcement.Path)
	}

	return err
}
