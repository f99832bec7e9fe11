package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"nftpin/internal/config"
	"nftpin/internal/daemonctl"
	"nftpin/internal/ipc"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, resolved, exists, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if socket := flagValue(c.socketFlag); socket != "" {
		return socket
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.SocketPath
	}
	defaults := config.Default()
	if expanded, err := config.ExpandPath(defaults.Paths.SocketPath); err == nil {
		return expanded
	}
	return defaults.Paths.SocketPath
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

func wrapDialError(err error, socket string) error {
	if daemonctl.IsDaemonUnavailable(err) {
		return fmt.Errorf("%w: nothing listening on %s; start it with `nftpin start`", daemonctl.ErrDaemonNotRunning, socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
