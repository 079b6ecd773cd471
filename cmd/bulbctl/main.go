// bulbctl talks to a bulb from the phone side: it pairs, sends commands and
// uploads firmware over BLE.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/pairing"
	"github.com/jwoglom/fakebulb/pkg/peer"
)

type command struct {
	help         string
	usage        string
	requiredArgs int
	handler      func(ctx context.Context, link peer.Link, current pairing.Credential, args []string) error
}

var commands = map[string]*command{
	"pair": {
		help:         "install a new mesh name and password",
		usage:        "NAME PASSWORD",
		requiredArgs: 2,
		handler: func(ctx context.Context, link peer.Link, current pairing.Credential, args []string) error {
			if _, err := peer.NewPairer(link).Pair(current, args[0], args[1]); err != nil {
				return err
			}
			log.Infof("Bulb now paired as %q", args[0])
			return nil
		},
	},
	"send": {
		help:         "log in and send an encrypted command payload",
		usage:        "HEX",
		requiredArgs: 1,
		handler: func(ctx context.Context, link peer.Link, current pairing.Credential, args []string) error {
			payload, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("payload: %w", err)
			}
			p := peer.NewPairer(link)
			key, err := p.Login(current)
			if err != nil {
				return err
			}
			return p.SendCommand(key, payload)
		},
	},
	"upload": {
		help:         "upload a firmware image over OTA",
		usage:        "FILE",
		requiredArgs: 1,
		handler: func(ctx context.Context, link peer.Link, current pairing.Credential, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			u := peer.NewUploader(link,
				peer.WithChunkSize(*chunkSize),
				peer.WithVerifyEvery(*verifyEvery),
				peer.WithProgressCallback(func(p peer.Progress) {
					log.Infof("%-9s %d/%d chunks (%.1f%%) %s", p.Phase, p.CurrentChunk, p.TotalChunks, p.Percentage, p.ElapsedTime.Round(time.Millisecond))
				}))
			return u.Upload(ctx, image)
		},
	},
}

var (
	adapter     = flag.String("adapter", "hci0", "HCI adapter")
	name        = flag.String("name", "telink_m", "current mesh name of the bulb")
	password    = flag.String("password", "123", "current mesh password of the bulb")
	timeout     = flag.Duration("timeout", 2*time.Minute, "give up after this long")
	chunkSize   = flag.Int("chunk", peer.DefaultChunkSize, "OTA chunk payload size")
	verifyEvery = flag.Int("verify-every", 0, "read the OTA status every N chunks")
	verbose     = flag.Bool("v", false, "verbose off by default, TraceLevel")
)

func usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n\n", os.Args[0])
	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Printf("\nAvailable COMMANDs:\n")
	var labels []string
	for label := range commands {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		c := commands[label]
		fmt.Printf("  %-7s %-14s %s\n", label, c.usage, c.help)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		log.SetLevel(log.TraceLevel)
	}
	log.SetFormatter(&logrus.TextFormatter{
		DisableQuote: true,
		ForceColors:  true,
	})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	c, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", args[0])
		os.Exit(1)
	}
	if len(args)-1 != c.requiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s %s %s\n", os.Args[0], args[0], strings.TrimSpace(c.usage))
		os.Exit(1)
	}

	current, err := pairing.NewCredential(*name, *password, pairing.FlagPaired)
	if err != nil {
		log.Fatalf("Invalid credential: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	central, err := bluetooth.Dial(ctx, *adapter, *name)
	if err != nil {
		log.Fatalf("Could not connect to %q: %s", *name, err)
	}
	defer central.Close()

	if err := c.handler(ctx, central, current, args[1:]); err != nil {
		log.Errorf("%s failed: %s", args[0], err)
		central.Close()
		os.Exit(1)
	}
}
