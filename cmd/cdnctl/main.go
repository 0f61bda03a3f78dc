// Command cdnctl uploads files to and downloads files from a CDN node.
//
//	cdnctl upload <file> <resource>
//	cdnctl download <resource> <destination>
//	cdnctl stat <resource>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/prappser/prappser_cdn/internal"
	"github.com/prappser/prappser_cdn/internal/client"
	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n  cdnctl [flags] upload <file> <resource>\n  cdnctl [flags] download <resource> <destination>\n  cdnctl [flags] stat <resource>\n\nflags:\n")
	pflag.PrintDefaults()
}

func main() {
	configPath := pflag.StringP("config", "c", internal.DefaultConfigPath, "path to the YAML configuration file")
	brokerURL := pflag.String("broker", "", "broker websocket URL (overrides client.brokerURL)")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if err := internal.SetupLogging(config.Log); err != nil {
		log.Fatal().Err(err).Msg("Error configuring logging")
	}
	if *brokerURL != "" {
		config.Client.BrokerURL = *brokerURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := connect(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to broker")
	}
	defer session.Close()

	c := client.NewRetrying(
		client.New(session, keyspace.New(config.Client.Root), client.Config{
			ChunkSize:      config.Client.ChunkSize,
			VerifyChecksum: config.Client.VerifyChecksum,
		}),
		client.RetryPolicy{
			Attempts: config.Client.Retry.Attempts,
			Backoff:  config.Client.Retry.Backoff,
		},
	)

	if err := run(ctx, c, args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		session.Close()
		os.Exit(1)
	}
}

// connect dials the configured broker, compressing frames when the broker does.
func connect(ctx context.Context, config *internal.Config) (*websocket.Session, error) {
	return websocket.Dial(ctx, config.Client.BrokerURL, config.Broker.Compress)
}

func run(ctx context.Context, c *client.Retrying, args []string) error {
	switch args[0] {
	case "upload":
		if len(args) != 3 {
			return fmt.Errorf("upload takes <file> <resource>")
		}
		key, err := c.Upload(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("File uploaded to %s\n", key)

	case "download":
		if len(args) != 3 {
			return fmt.Errorf("download takes <resource> <destination>")
		}
		path, err := c.Download(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("File downloaded to %s\n", path)

	case "stat":
		meta, err := c.Stat(ctx, args[1])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
