// Package main provides the utf8stream command, a driver for the streaming
// decoder.
//
// Usage:
//
//	utf8stream demo
//	utf8stream decode [options] [FILE...]
//	utf8stream version
//
// The exit code is 1 on any error, including input rejected by the "fail"
// policy.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "utf8stream",
		Usage:          "Decode chunked byte streams as UTF-8",
		Version:        version,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			DemoCommand(),
			DecodeCommand(),
			VersionCommand(),
		},
	}
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintf(c.App.Writer, "utf8stream %s\n", version)
			return err
		},
	}
}

// exitErrHandler prints err and exits, keeping the code of cli.Exit errors.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(c.App.ErrWriter, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(c.App.ErrWriter, "Error: %v\n", err)
	os.Exit(1)
}
