// Command ircoreutil connects one or more servers described by a TOML
// config file and logs every inbound/outbound line to stdout until
// interrupted, joining each server's configured autojoin channels once
// registered.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ircore/ircore"
)

// tomlConfig is the on-disk shape ircoreutil loads; each [servers.NAME]
// table becomes one flat string map fed through ircore.MapOptions,
// keeping the TOML file format itself outside ircore's own scope.
type tomlConfig struct {
	Servers map[string]map[string]string `toml:"servers"`
}

func main() {
	path := flag.String("config", "ircoreutil.toml", "path to a TOML config file")
	flag.Parse()

	var cfg tomlConfig
	if _, err := toml.DecodeFile(*path, &cfg); err != nil {
		log.Fatalf("ircoreutil: loading %s: %v", *path, err)
	}

	core := ircore.NewCore()
	core.RawLog = os.Stdout

	for name, values := range cfg.Servers {
		opt := ircore.NewMapOptions(values)
		scfg, err := ircore.LoadServerConfig(name, opt)
		if err != nil {
			log.Fatalf("ircoreutil: server %q: %v", name, err)
		}

		srv, err := core.AddServer(scfg)
		if err != nil {
			log.Fatalf("ircoreutil: registering %q: %v", name, err)
		}

		autojoin := scfg.Autojoin
		srv.OnLifecycle = func(s *ircore.Server, event string) {
			log.Printf("[%s] %s", s.Name(), event)
			if event == ircore.CONNECTED && len(autojoin) > 0 {
				s.Commands().Join(autojoin...)
			}
		}
		srv.OnSignal = func(s *ircore.Server, direction string, m *ircore.Message) {
			if strings.EqualFold(m.Command, ircore.PRIVMSG) {
				log.Printf("[%s] %s %s", s.Name(), direction, m.Command)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := core.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("ircoreutil: %v", err)
	}
}
