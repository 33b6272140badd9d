package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cobkit/cobkit/app"
	"github.com/cobkit/cobkit/app/logger"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Account struct {
	KeyPath string `yaml:"keyPath"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Config struct {
	Account Account       `yaml:"account"`
	Storage Storage       `yaml:"storage"`
	Logger  logger.Config `yaml:"logger"`
}

func (c *Config) Init(a *app.App) (err error) {
	return
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) AccountKeyPath() string {
	return c.Account.KeyPath
}

func (c *Config) StoragePath() string {
	return c.Storage.Path
}
