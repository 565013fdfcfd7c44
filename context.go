package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	cfg "github.com/crycare/cry-pipeline/config"
	"github.com/crycare/cry-pipeline/history"
	"github.com/crycare/cry-pipeline/logging"
	"github.com/crycare/cry-pipeline/models"
)

// commandContext lazily loads what subcommands share: configuration, the
// logger and the model bundle.
type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *cfg.Root
	logger     *logrus.Logger
	configErr  error

	bundleOnce sync.Once
	bundle     *models.Bundle
	bundleErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (*cfg.Root, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		conf, err := cfg.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			conf.Pipeline.LogLvl = *c.logLevelFlag
		}
		log, err := logging.NewFromConfig(conf)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = conf
		c.logger = log
	})
	return c.config, c.configErr
}

func (c *commandContext) log() logrus.FieldLogger {
	if c.logger == nil {
		return logrus.StandardLogger()
	}
	return c.logger
}

func (c *commandContext) models() (*models.Bundle, error) {
	c.bundleOnce.Do(func() {
		conf, err := c.ensureConfig()
		if err != nil {
			c.bundleErr = err
			return
		}
		b, err := models.Load(conf.Paths.Models)
		if err != nil {
			c.bundleErr = fmt.Errorf("load models from %s: %w", conf.Paths.Models, err)
			return
		}
		fp, _ := b.Fingerprint()
		c.log().WithFields(logrus.Fields{
			"dir":         conf.Paths.Models,
			"version":     b.Manifest.Version,
			"fingerprint": fp,
		}).Info("models loaded")
		c.bundle = b
	})
	return c.bundle, c.bundleErr
}

func (c *commandContext) history() (*history.Store, error) {
	conf, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(conf.Paths.History)
}
