package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the TCP console using DNS-SD.
 *
 * Description:	Nobody wants to remember the address of the box in
 *		the cupboard.  The console shows up as
 *		_vaxel-console._tcp on the local network.
 *
 *		This uses the pure-Go github.com/brutella/dnssd
 *		package, no system daemon needed.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brutella/dnssd"
)

const DNS_SD_SERVICE = "_vaxel-console._tcp"

// Default service name, "vaxel on <hostname>".
func announce_default_name() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil {
		return "vaxel"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "vaxel on " + hostname
}

// Announce publishes the console port until ctx is done.
func Announce(ctx context.Context, name string, port int) error {
	if name == "" {
		name = announce_default_name()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		return fmt.Errorf("DNS-SD: create service: %w", svErr)
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		return fmt.Errorf("DNS-SD: create responder: %w", rpErr)
	}

	if _, addErr := rp.Add(sv); addErr != nil {
		return fmt.Errorf("DNS-SD: add service: %w", addErr)
	}

	log_root.Info("DNS-SD: announcing console", "port", port, "name", name)

	go func() {
		var respondErr = rp.Respond(ctx)
		if respondErr != nil && ctx.Err() == nil {
			log_root.Error("DNS-SD: responder stopped", "err", respondErr)
		}
	}()

	return nil
}
