// Package main provides a thin command-line driver for running and probing
// a single kadnet node, grounded on the teacher's testnet CLI
// (github.com/opd-ai/toxcore/testnet/cmd/main.go) but reduced to the handful
// of flags a DHT node actually needs, per this component's supplemented-but-
// deliberately-trivial scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/server"
)

type cliConfig struct {
	listenAddr string
	bootstrap  string
	logLevel   string
	diagKey    string
	diagValue  string
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}
	flag.StringVar(&cfg.listenAddr, "listen", ":0", "UDP address to listen on")
	flag.StringVar(&cfg.bootstrap, "bootstrap", "", "comma-separated host:port list of bootstrap peers")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.diagKey, "set", "", "diagnostic: store this key and exit")
	flag.StringVar(&cfg.diagValue, "value", "", "diagnostic: value to store with -set")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "kadnode")

	n, err := server.Listen(server.DefaultConfig(cfg.listenAddr))
	if err != nil {
		log.WithError(err).Fatal("failed to start node")
	}
	defer n.Stop()

	log.WithFields(logrus.Fields{
		"id":   n.Self().ID.String(),
		"addr": n.Self().Addr(),
	}).Info("kadnode listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.bootstrap != "" {
		seeds, err := parseSeeds(cfg.bootstrap)
		if err != nil {
			log.WithError(err).Fatal("invalid -bootstrap list")
		}
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := n.Bootstrap(bootstrapCtx, seeds); err != nil {
			log.WithError(err).Warn("bootstrap did not fully succeed")
		}
		bootstrapCancel()
	}

	if cfg.diagKey != "" {
		diagCtx, diagCancel := context.WithTimeout(ctx, 5*time.Second)
		err := n.Set(diagCtx, []byte(cfg.diagKey), cfg.diagValue)
		diagCancel()
		if err != nil {
			log.WithError(err).Fatal("diagnostic set failed")
		}
		fmt.Printf("stored %q = %q\n", cfg.diagKey, cfg.diagValue)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}

func parseSeeds(csv string) ([]id.Contact, error) {
	var out []id.Contact
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			part := csv[start:i]
			start = i + 1
			if part == "" {
				continue
			}
			host, portStr, err := net.SplitHostPort(part)
			if err != nil {
				return nil, fmt.Errorf("invalid bootstrap address %q: %w", part, err)
			}
			ip := net.ParseIP(host)
			if ip == nil {
				resolved, err := net.ResolveIPAddr("ip", host)
				if err != nil {
					return nil, fmt.Errorf("resolving %q: %w", host, err)
				}
				ip = resolved.IP
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid port in %q: %w", part, err)
			}
			out = append(out, id.Contact{ID: id.Digest([]byte(part)), IP: ip, Port: uint16(port)})
		}
	}
	return out, nil
}
