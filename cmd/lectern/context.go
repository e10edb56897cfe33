package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/daemonrun"
	"lectern/internal/logging"
	"lectern/internal/queueaccess"
)

const dialTimeout = 2 * time.Second

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// openAccess prefers the running daemon and falls back to the job store.
func (c *commandContext) openAccess(ctx context.Context) (queueaccess.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return queueaccess.Session{}, err
	}
	return queueaccess.OpenWithFallback(
		func() (*api.Client, error) {
			dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			return queueaccess.DialAPI(dialCtx, cfg.Paths.APIBind, cfg.Paths.APIToken)
		},
		func() (queueaccess.Access, func() error, error) {
			components, err := daemonrun.Build(cfg, logging.NewNop())
			if err != nil {
				return nil, nil, err
			}
			return components.Access(), components.Close, nil
		},
	)
}

func (c *commandContext) withAccess(cmd *cobra.Command, fn func(queueaccess.Access) error) error {
	session, err := c.openAccess(cmd.Context())
	if err != nil {
		return err
	}
	defer session.Close()
	if !session.Access.Live() && !c.JSONMode() {
		fmt.Fprintln(cmd.ErrOrStderr(), "lectern daemon is not running; using the job store directly")
	}
	return fn(session.Access)
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
