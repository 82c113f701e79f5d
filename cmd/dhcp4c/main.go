// Command dhcp4c runs a single DHCPv4 client session against one
// interface, driven by a YAML settings file (dhcp4.LoadConfigFile).
package main

import (
	"flag"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lx-systems/dhcp4c/dhcp4"
	"github.com/lx-systems/dhcp4c/dhcp4/client"
	"github.com/lx-systems/dhcp4c/internal/arpprobe"
	"github.com/lx-systems/dhcp4c/internal/eloop"
	"github.com/lx-systems/dhcp4c/internal/iface"
)

func main() {
	configPath := flag.String("config", "/etc/dhcp4c.yaml", "path to the YAML settings file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, ifaceName, err := dhcp4.LoadConfigFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("dhcp4c: load config")
	}

	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		log.WithError(err).Fatal("dhcp4c: resolve interface")
	}

	raw, err := iface.NewRawSocket(ifi)
	if err != nil {
		log.WithError(err).Fatal("dhcp4c: open raw socket")
	}

	loop := eloop.New()
	defer loop.Close()

	c := client.New(ifi.Name, cfg, client.Collaborators{
		Raw: raw,
		UDP: func(local netip.Addr) (iface.UDPSocket, error) {
			return iface.NewUDPSocket(local)
		},
		Link:   iface.NewLinkInfo(ifi),
		Kernel: iface.NewKernelApplier(),
		ARP:    arpprobe.NewCollaborator(),
		Script: iface.NewScriptRunner(),
	}, loop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go readLoop(raw, c)

	c.Start()

	<-sigCh
	log.Info("dhcp4c: shutting down")
	c.Release()
}

// readLoop pumps inbound frames from the raw socket into the client's
// dispatcher, running on the event loop goroutine. It skips every Recv
// error (a passed read deadline included) and keeps reading until the
// process exits.
func readLoop(raw iface.RawSocket, c *client.Client) {
	for {
		payload, partial, err := raw.Recv(time.Now().Add(5 * time.Second))
		if err != nil {
			continue
		}
		c.Loop.Post(func() {
			c.Dispatch(client.DispatchConfig{}, payload, netip.Addr{}, partial)
		})
	}
}
