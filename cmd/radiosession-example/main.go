// Command radiosession-example connects to a radio's control channel,
// logs lifecycle progress and every store change through the standard
// logger (stderr), and exits on SIGINT or SIGTERM. It exists to exercise the session engine end-to-end, the way the
// teacher's own main.go wires its controller and server together.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwsl/radiosession"
	"github.com/cwsl/radiosession/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4992", "control channel host:port")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg := radiosession.DefaultConfig()
	if *configPath != "" {
		loaded, err := radiosession.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("radiosession-example: %v", err)
		}
		cfg = loaded
	}

	conn, err := transport.DialControl(*addr)
	if err != nil {
		log.Fatalf("radiosession-example: %v", err)
	}

	session := radiosession.NewSession(conn, cfg, log.Default())
	session.On(radiosession.EventProgress, func(ev radiosession.Event) {
		log.Printf("stage: %s", ev.Progress)
	})
	session.On(radiosession.EventChange, func(ev radiosession.Event) {
		if ev.Change == nil {
			return
		}
		log.Printf("change: %s %s %v", ev.Change.Kind, ev.Change.ID, ev.Change.Diff)
	})
	session.On(radiosession.EventDisconnected, func(ev radiosession.Event) {
		log.Printf("disconnected: %v", ev.Err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Connect(ctx); err != nil {
		log.Fatalf("radiosession-example: connect: %v", err)
	}

	<-ctx.Done()
	session.Close()
}
