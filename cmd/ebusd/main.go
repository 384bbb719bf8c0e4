// Command ebusd runs an eBUS driver against a configured device and
// serves the diagnostics HTTP surface over the running handler.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebusgo/ebusd/config"
	"github.com/ebusgo/ebusd/device"
	"github.com/ebusgo/ebusd/driver"
	"github.com/ebusgo/ebusd/ebus"
	"github.com/ebusgo/ebusd/fsm"
	"github.com/ebusgo/ebusd/httpstats"
	"github.com/ebusgo/ebusd/logger"
)

func buildDevice(c config.Config) device.Device {
	switch c.Device {
	case "tcp":
		return device.NewNetwork(c.NetworkAddr, 0, c.OpenRetryMax)
	default:
		return device.NewSerial(c.SerialPort, c.SerialBaud, c.OpenRetryMax)
	}
}

func levelFromName(name string) logger.Level {
	switch name {
	case "trace":
		return logger.Trace
	case "debug":
		return logger.Debug
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Info
	}
}

func main() {
	confPath := flag.String("config", "ebusd.yml", "path to the YAML config file")
	mkconf := flag.Bool("mkconf", false, "write the default configuration to -config and exit")
	flag.Parse()

	if *mkconf {
		if err := config.WriteDefault(*confPath); err != nil {
			log.Fatalf("writing default config: %v", err)
		}
		return
	}

	loader, err := config.NewLoader(*confPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	c := loader.Current()

	lg := logger.NewColorLogger()
	lg.MinLevel = levelFromName(c.LogLevel)

	h := fsm.NewHandler(c.Address)
	h.SetMaxLockCounter(c.MaxLockCounter)
	h.SetAccessTimeoutUs(c.AccessTimeoutUs)
	h.SetLogger(lg)
	h.OnTelegram(func(role fsm.Message, tg *ebus.Telegram) {
		lg.Infof("%s telegram type=%s valid=%v", role, tg.Type(), tg.IsValid())
	})
	h.OnError(func(err error) {
		lg.Warnf("observed cycle failed: %v", err)
	})

	dev := buildDevice(c)
	drv := driver.New(dev, h)

	loader.OnReload(func(c config.Config) {
		h.SetMaxLockCounter(c.MaxLockCounter)
		h.SetAccessTimeoutUs(c.AccessTimeoutUs)
		lg.MinLevel = levelFromName(c.LogLevel)
	})
	if err := loader.Watch(); err != nil {
		lg.Warnf("config hot-reload disabled: %v", err)
	}

	if err := drv.Open(); err != nil {
		lg.Errorf("opening device: %v", err)
		os.Exit(1)
	}
	drv.Run()

	if c.HTTPAddr != "" {
		srv := httpstats.New(h, drv.Online)
		go func() {
			if err := http.ListenAndServe(c.HTTPAddr, srv); err != nil {
				lg.Errorf("diagnostics HTTP server exited: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	drv.Stop()
	drv.Close()
	loader.Close()
}
