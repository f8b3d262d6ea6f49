package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	solog "github.com/twitter/solo/common/log"
	"github.com/twitter/solo/config/soloconfig"
	"github.com/twitter/solo/daemon/server"
)

// The solo daemon: one scheduler, served on a unix socket, with admin endpoints over http.
func main() {
	var configPath, socketPath, httpAddr, logLevel string
	var watch bool

	cmd := &cobra.Command{
		Use:          "solod",
		Short:        "Solod runs image generation jobs one at a time",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := soloconfig.Default()
			if configPath != "" {
				var err error
				if c, err = soloconfig.Load(configPath); err != nil {
					return err
				}
			}
			if socketPath != "" {
				c.Daemon.SocketPath = socketPath
			}
			if httpAddr != "" {
				c.HTTP.Addr = httpAddr
			}
			if logLevel != "" {
				c.Log.Level = logLevel
			}
			if err := solog.Configure(c.Log); err != nil {
				return err
			}
			log.Infof("Starting solod with config:\n%s", c)
			return run(c, configPath, watch)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (JSON, or YAML if named .yaml/.yml)")
	f.StringVar(&socketPath, "socket", "", "unix socket to serve on, overrides config")
	f.StringVar(&httpAddr, "http", "", "admin http address, overrides config")
	f.StringVar(&logLevel, "log_level", "", "log level, overrides config")
	f.BoolVar(&watch, "watch", true, "reload the config file when it changes")

	if err := cmd.Execute(); err != nil {
		log.Fatal("Error running solod: ", err)
	}
}

func run(c *soloconfig.Config, configPath string, watch bool) error {
	d, err := newSolod(c)
	if err != nil {
		return err
	}
	sockL, err := server.Listen(c.Daemon.SocketPath)
	if err != nil {
		return err
	}
	httpL, err := net.Listen("tcp", c.HTTP.Addr)
	if err != nil {
		sockL.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if watch && configPath != "" {
		go func() {
			if err := soloconfig.Watch(ctx, configPath, c, d.reconfigure); err != nil {
				log.Warnf("Config watch ended: %v", err)
			}
		}()
	}
	return d.serve(ctx, sockL, httpL)
}
