package main

import (
	"context"
	"fmt"
	"time"

	"github.com/browserkit/framesync/common"
	"github.com/browserkit/framesync/log"

	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	WSURL             string        `envconfig:"FRAMESYNC_WS_URL"`
	LogLevel          string        `envconfig:"FRAMESYNC_LOG_LEVEL"`
	LogCategoryFilter string        `envconfig:"FRAMESYNC_LOG_CATEGORY_FILTER"`
	Timeout           time.Duration `envconfig:"FRAMESYNC_TIMEOUT"`
}

type rootCommand struct {
	cmd    *cobra.Command
	opts   options
	logger *log.Logger
}

func newRootCommand() *rootCommand {
	c := &rootCommand{
		opts: options{
			LogLevel: "info",
			Timeout:  30 * time.Second,
		},
	}
	c.cmd = &cobra.Command{
		Use:           "framesync",
		Short:         "Mirror and inspect a browser target's frame tree over CDP",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := c.cmd.PersistentFlags()
	flags.StringVar(&c.opts.WSURL, "ws-url", "", "DevTools WebSocket endpoint, e.g. ws://127.0.0.1:9222/devtools/browser/...")
	flags.StringVar(&c.opts.LogLevel, "log-level", c.opts.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&c.opts.LogCategoryFilter, "log-category-filter", "", "regexp restricting log lines to matching categories, e.g. ^FrameManager:")
	flags.DurationVar(&c.opts.Timeout, "timeout", c.opts.Timeout, "overall command timeout")

	c.cmd.AddCommand(newTreeCommand(c), newEvalCommand(c))

	return c
}

func (c *rootCommand) setup(cmd *cobra.Command) error {
	// Flags win over the environment; only fill in what wasn't set
	// on the command line.
	var envOpts options
	if err := envconfig.Process("", &envOpts); err != nil {
		return fmt.Errorf("reading environment configuration: %w", err)
	}
	if !cmd.Flags().Changed("ws-url") && envOpts.WSURL != "" {
		c.opts.WSURL = envOpts.WSURL
	}
	if !cmd.Flags().Changed("log-level") && envOpts.LogLevel != "" {
		c.opts.LogLevel = envOpts.LogLevel
	}
	if !cmd.Flags().Changed("log-category-filter") && envOpts.LogCategoryFilter != "" {
		c.opts.LogCategoryFilter = envOpts.LogCategoryFilter
	}
	if !cmd.Flags().Changed("timeout") && envOpts.Timeout != 0 {
		c.opts.Timeout = envOpts.Timeout
	}
	if c.opts.WSURL == "" {
		return fmt.Errorf("no DevTools endpoint given, set --ws-url or FRAMESYNC_WS_URL")
	}

	c.logger = log.New(logrus.New(), false, nil)
	if err := c.logger.SetLevel(c.opts.LogLevel); err != nil {
		return err
	}
	if err := c.logger.SetCategoryFilter(c.opts.LogCategoryFilter); err != nil {
		return err
	}
	if c.logger.DebugMode() {
		c.logger.ReportCaller()
	}
	return nil
}

// connect dials the endpoint, attaches to the first page target and
// builds a frame manager for it.
func (c *rootCommand) connect(ctx context.Context) (*common.Connection, *common.FrameManager, error) {
	conn, err := common.NewConnection(ctx, c.opts.WSURL, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %q: %w", c.opts.WSURL, err)
	}
	sess, err := conn.AttachToPageTarget()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("attaching to page target: %w", err)
	}
	fm, err := common.NewFrameManager(ctx, sess, nil, c.logger)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("building frame tree: %w", err)
	}
	return conn, fm, nil
}
