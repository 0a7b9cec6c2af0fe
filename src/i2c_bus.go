package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Open the I2C bus the expanders are on.
 *
 * Description:	i2c.bus names the bus directly.  Otherwise we ask
 *		udev for i2c-dev adapters and take the first whose
 *		name contains i2c.adapter_name, which survives
 *		renumbering when USB adapters come and go.  With
 *		neither, periph picks its default bus.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"strings"

	"github.com/jochenvg/go-udev"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type i2cAdapter struct {
	Devnode string
	Name    string
}

// listI2CAdapters returns every i2c-dev node udev knows about.
func listI2CAdapters() ([]i2cAdapter, error) {
	var u udev.Udev
	var e = u.NewEnumerate()
	if err := e.AddMatchSubsystem("i2c-dev"); err != nil {
		return nil, fmt.Errorf("udev match: %w", err)
	}

	var devices, err = e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate: %w", err)
	}

	var out = make([]i2cAdapter, 0, len(devices))
	for _, d := range devices {
		if d.Devnode() == "" {
			continue
		}
		out = append(out, i2cAdapter{Devnode: d.Devnode(), Name: strings.TrimSpace(d.SysattrValue("name"))})
	}
	return out, nil
}

// matchI2CAdapter picks the first adapter whose name contains want, ignoring case.
func matchI2CAdapter(adapters []i2cAdapter, want string) (i2cAdapter, bool) {
	var w = strings.ToLower(want)
	for _, a := range adapters {
		if strings.Contains(strings.ToLower(a.Name), w) {
			return a, true
		}
	}
	return i2cAdapter{}, false
}

// PrintI2CAdapters lists the adapters for picking i2c.adapter_name.
func PrintI2CAdapters(w io.Writer) error {
	var adapters, err = listI2CAdapters()
	if err != nil {
		return err
	}

	if len(adapters) == 0 {
		fmt.Fprintln(w, "No i2c-dev adapters found.  Is the i2c-dev module loaded?")
		return nil
	}

	for _, a := range adapters {
		fmt.Fprintf(w, "%-16s %s\n", a.Devnode, a.Name)
	}
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenBus
 *
 * Purpose:     Initialise the host drivers and open the bus.
 *
 * Inputs:	c	- Bus name or adapter name, both may be empty.
 *
 * Returns:	The bus.  Close it when done.
 *
 *--------------------------------------------------------------------*/

func OpenBus(c I2CConfig) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	var name = c.Bus
	if name == "" && c.AdapterName != "" {
		var adapters, err = listI2CAdapters()
		if err != nil {
			return nil, err
		}
		var a, ok = matchI2CAdapter(adapters, c.AdapterName)
		if !ok {
			return nil, fmt.Errorf("no I2C adapter named like %q", c.AdapterName)
		}
		log_root.Info("using I2C adapter", "name", a.Name, "dev", a.Devnode)
		name = a.Devnode
	}

	var bus, err = i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", name, err)
	}
	return bus, nil
}
