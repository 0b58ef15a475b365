package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/appconnect/internal/agent"
	"github.com/dmitrijs2005/appconnect/internal/agent/config"
	"github.com/dmitrijs2005/appconnect/internal/platform"
)

func main() {

	cfg := config.LoadConfig()
	ctx := context.Background()

	// The host-OS clipboard integration ships separately; the dev binary
	// runs against the channel-backed adapter.
	app, err := agent.NewApp(ctx, cfg, platform.NewFake())
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "pair" {
		qr, err := readQR()
		if err != nil {
			log.Fatalf("%v", err)
		}
		device, err := app.Pair(ctx, qr)
		if err != nil {
			log.Fatalf("pairing failed: %v", err)
		}
		fmt.Printf("paired with %s (%s)\n", device.Name, device.CertificateFingerprint)
	}

	app.Run(ctx)

}

// readQR takes the scanned QR payload as one JSON line on stdin.
func readQR() (string, error) {
	fmt.Fprintln(os.Stderr, "paste QR payload:")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	if !scanner.Scan() {
		return "", fmt.Errorf("no QR payload on stdin: %w", scanner.Err())
	}
	return scanner.Text(), nil
}
