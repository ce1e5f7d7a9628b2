package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/chronos-tachyon/go-utf8stream"
)

// demoChunks is "éあ💔" split inside its second and third characters.
var demoChunks = [][]byte{
	{0xC3, 0xA9, 0xE3, 0x81},
	{0x82, 0xF0, 0x9F, 0x92},
	{0x94},
}

// DemoCommand returns the demo command.
func DemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Decode a sample split across chunk boundaries",
		Action: func(c *cli.Context) error {
			return runDemo(c.App.Writer)
		},
	}
}

// runDemo prints the text retrieved after each chunk, then decodes the
// whole sample again after a reset and prints it at once.
func runDemo(w io.Writer) error {
	d := utf8stream.NewDecoder(utf8stream.DecoderOptions{})

	for _, chunk := range demoChunks {
		if err := d.Append(chunk); err != nil {
			return err
		}
		fmt.Fprintln(w, d.Retrieve())
	}
	if err := d.Finalize(); err != nil {
		return err
	}
	fmt.Fprintln(w, d.Retrieve())

	d.Reset()
	for _, chunk := range demoChunks {
		if err := d.Append(chunk); err != nil {
			return err
		}
	}
	if err := d.Finalize(); err != nil {
		return err
	}
	fmt.Fprintln(w, d.Retrieve())

	if d.HasErrors() {
		return cli.Exit("demo: unexpected invalid sequence", 1)
	}
	return nil
}
