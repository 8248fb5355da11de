package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/aryanA101a/svm-go/vm"
)

// config is the on-disk configuration: the machine plus how to drive it.
type config struct {
	vm.Config

	TimerInterval int    `json:"timer_interval"` // cycles between timer interrupts, 0 disables the timer
	MaxCycles     uint64 `json:"max_cycles"`     // 0 runs until the machine halts
	LogFile       string `json:"log_file"`
	Console       string `json:"console"` // terminal device that receives the log
	MemMap        string `json:"memmap"`  // PNG written when the run ends
}

func defaultConfig() config {
	return config{
		Config:        vm.DefaultConfig(),
		TimerInterval: 1,
	}
}

// loadConfig decodes the JSON file at path over the values already in cfg.
func loadConfig[T any](path string, cfg *T) error {
	configFile, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer configFile.Close()

	jsonParser := json.NewDecoder(configFile)
	jsonParser.DisallowUnknownFields()
	if err := jsonParser.Decode(cfg); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func (c config) validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.TimerInterval < 0 {
		return errors.Errorf("timer_interval must not be negative, got %d", c.TimerInterval)
	}
	return nil
}
