package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for "vaxel", the control core of a
 *		small analog telephone exchange:
 *
 *			MCP23017 port expanders on I2C.
 *			Hook switch and rotary dial decoding.
 *			DTMF decoding with an MT8870.
 *			Ring generation.
 *			MT8816 crosspoint switch for the audio paths.
 *			Operator console on TCP, serial, or a pseudo terminal.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	vaxel "github.com/doismellburning/vaxel/src"
	"github.com/spf13/pflag"
)

/*-------------------------------------------------------------------
 *
 * Name:        main
 *
 * Purpose:     Bring up the exchange and run it until interrupted.
 *
 * Inputs:	Command line arguments.
 *		See usage message for details.
 *
 *--------------------------------------------------------------------*/

func main() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.  Default is to look in the usual places.")
	var verbose = pflag.BoolP("verbose", "v", false, "Debug output from every component.")
	var logFile = pflag.StringP("log-file", "L", "", "File name for logging, overrides log.file.")
	var listen = pflag.StringP("listen", "l", "", "Console TCP address, overrides console.listen.")
	var enablePseudoTerminal = pflag.BoolP("enable-ptty", "p", false, "Enable pseudo terminal for the console.")
	var checkConfig = pflag.BoolP("check-config", "C", false, "Print the configuration in effect and exit.")
	var listI2C = pflag.Bool("list-i2c", false, "List I2C adapters and exit.")
	var version = pflag.BoolP("version", "V", false, "Print version and exit.")

	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - analog telephone exchange controller.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: vaxel [options]\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Documentation can be found online at https://github.com/doismellburning/vaxel/\n")
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if *version {
		vaxel.PrintVersion(os.Stdout, *verbose)
		os.Exit(0)
	}

	if *listI2C {
		if err := vaxel.PrintI2CAdapters(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var cfg, cfgErr = vaxel.LoadConfig(*configFileName)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", cfgErr)
		os.Exit(1)
	}

	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *listen != "" {
		cfg.Console.Listen = *listen
	}
	if *enablePseudoTerminal {
		cfg.Console.Pty = true
	}

	if *checkConfig {
		var out, err = cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		os.Exit(0)
	}

	if err := run(cfg, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(cfg *vaxel.Config, verbose bool) error {
	var logCloser = vaxel.SetupLogging(cfg.Log, verbose)
	if logCloser != nil {
		defer logCloser.Close()
	}

	vaxel.Logger.Info(vaxel.VersionString())

	var bus, busErr = vaxel.OpenBus(cfg.I2C)
	if busErr != nil {
		return busErr
	}
	defer bus.Close()

	var app, appErr = vaxel.NewApp(cfg, bus, vaxel.SystemClock)
	if appErr != nil {
		return appErr
	}

	if err := app.Begin(); err != nil {
		return errors.Join(err, app.Close())
	}

	if err := app.AttachInterrupts(); err != nil {
		vaxel.Logger.Warn("no interrupt lines, polling the expanders", "err", err)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.StartServices(ctx)

	var runErr = app.Run(ctx)

	vaxel.Logger.Info("shutting down")

	return errors.Join(runErr, app.Close())
}
