package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronos-tachyon/go-utf8stream"
	"github.com/chronos-tachyon/go-utf8stream/internal/config"
	"github.com/chronos-tachyon/go-utf8stream/internal/log"
)

// stdinName selects standard input as a decode input.
const stdinName = "-"

// Result is the outcome of decoding one input.
type Result struct {
	Input            string `json:"input" yaml:"input"`
	Text             string `json:"text" yaml:"text"`
	Bytes            int64  `json:"bytes" yaml:"bytes"`
	InvalidSequences int64  `json:"invalid_sequences" yaml:"invalid_sequences"`
	HasErrors        bool   `json:"has_errors" yaml:"has_errors"`
}

// Decode flags.  When set they override the config file.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file",
	}
	PolicyFlag = &cli.StringFlag{
		Name:    "policy",
		Aliases: []string{"p"},
		Usage:   "Invalid sequence policy: ignore, fail, replace",
	}
	ReplacementFlag = &cli.StringFlag{
		Name:  "replacement",
		Usage: "Replacement text for the replace policy (default U+FFFD)",
	}
	AllowRedundantFlag = &cli.BoolFlag{
		Name:  "allow-redundant",
		Usage: "Accept overlong encodings",
	}
	ChunkSizeFlag = &cli.IntFlag{
		Name:  "chunk-size",
		Usage: "Number of bytes appended to the decoder at a time",
	}
	JobsFlag = &cli.IntFlag{
		Name:    "jobs",
		Aliases: []string{"j"},
		Usage:   "Number of inputs decoded concurrently",
	}
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, json, yaml",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}
)

// DecodeCommand returns the decode command.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode files (or stdin) chunk by chunk",
		ArgsUsage: "[FILE...]",
		Flags: []cli.Flag{
			ConfigFlag,
			PolicyFlag,
			ReplacementFlag,
			AllowRedundantFlag,
			ChunkSizeFlag,
			JobsFlag,
			FormatFlag,
			LogLevelFlag,
		},
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := NewRenderer(cfg.Format, c.App.Writer)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, err := log.NewLoggerWithWriter(c.App.ErrWriter, cfg.LogLevel)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	policy, err := cfg.DecoderPolicy()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		inputs = []string{stdinName}
	}

	job := decodeJob{
		chunkSize: cfg.ChunkSize,
		stdin:     c.App.Reader,
		log:       logger,
		options: utf8stream.DecoderOptions{
			Policy:                 policy,
			AllowRedundantEncoding: cfg.AllowRedundantEncoding,
			Logger:                 logger,
		},
	}

	results, err := job.decodeAll(c.Context, inputs, cfg.Jobs)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return r.Render(results)
}

// resolveConfig merges the config file (if any) and the flags that were set.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if c.IsSet(PolicyFlag.Name) {
		cfg.Policy = c.String(PolicyFlag.Name)
	}
	if c.IsSet(ReplacementFlag.Name) {
		cfg.Replacement = c.String(ReplacementFlag.Name)
	}
	if c.IsSet(AllowRedundantFlag.Name) {
		cfg.AllowRedundantEncoding = c.Bool(AllowRedundantFlag.Name)
	}
	if c.IsSet(ChunkSizeFlag.Name) {
		cfg.ChunkSize = c.Int(ChunkSizeFlag.Name)
	}
	if c.IsSet(JobsFlag.Name) {
		cfg.Jobs = c.Int(JobsFlag.Name)
	}
	if c.IsSet(FormatFlag.Name) {
		cfg.Format = c.String(FormatFlag.Name)
	}
	if c.IsSet(LogLevelFlag.Name) {
		cfg.LogLevel = c.String(LogLevelFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type decodeJob struct {
	chunkSize int
	stdin     io.Reader
	log       *zap.Logger
	options   utf8stream.DecoderOptions
}

// decodeAll decodes every input with its own Decoder, at most jobs at a
// time.  Results are in input order.
func (j decodeJob) decodeAll(ctx context.Context, inputs []string, jobs int) ([]Result, error) {
	results := make([]Result, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, name := range inputs {
		g.Go(func() error {
			res, err := j.decodeInput(ctx, name)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (j decodeJob) decodeInput(ctx context.Context, name string) (Result, error) {
	r := j.stdin
	if name != stdinName {
		f, err := os.Open(name)
		if err != nil {
			return Result{}, fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	opts := j.options
	opts.Logger = j.log.With(zap.String("input", name))
	d := utf8stream.NewDecoder(opts)

	res, err := decodeReader(ctx, d, r, j.chunkSize)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	res.Input = name

	j.log.Info("decoded",
		zap.String("input", name),
		zap.Int64("bytes", res.Bytes),
		zap.Int64("invalid_sequences", res.InvalidSequences),
	)
	return res, nil
}

// decodeReader feeds r to d in chunks of chunkSize bytes and finalizes d at
// the end of input.
func decodeReader(ctx context.Context, d *utf8stream.Decoder, r io.Reader, chunkSize int) (Result, error) {
	var text strings.Builder
	chunk := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		n, rerr := r.Read(chunk)
		if err := d.Append(chunk[:n]); err != nil {
			return Result{}, err
		}
		text.WriteString(d.Retrieve())

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Result{}, fmt.Errorf("read input: %w", rerr)
		}
	}

	if err := d.Finalize(); err != nil {
		return Result{}, err
	}
	text.WriteString(d.Retrieve())

	stats := d.Stats()
	return Result{
		Text:             text.String(),
		Bytes:            stats.BytesAppended,
		InvalidSequences: stats.InvalidSequences,
		HasErrors:        d.HasErrors(),
	}, nil
}
