package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openfluke/heat3d/device"
	"github.com/openfluke/heat3d/engine"
	"github.com/openfluke/heat3d/functions"
	"github.com/openfluke/heat3d/params"
)

// runConfig is the resolved configuration of one invocation.
type runConfig struct {
	cfg *params.Config
	p   params.Parameters
	fns *functions.Set
}

// loadRun merges the config file, the legacy parameters file and the flags,
// then transpiles the user functions.
func loadRun() (*runConfig, error) {
	cfg, err := params.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if historyPath != "" {
		cfg.History = historyPath
	}
	if paramsPath != "" {
		lp, err := params.LoadLegacy(paramsPath)
		if err != nil {
			return nil, err
		}
		cfg.Grid = params.GridConfig{NX: lp.NX, NY: lp.NY, NZ: lp.NZ}
		cfg.Time = params.TimeConfig{DT: lp.DT, MaxIterations: lp.MaxIterations, OutputFrequency: lp.OutputFrequency}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := cfg.Parameters()
	if err != nil {
		return nil, err
	}
	if !p.Stable() {
		logger.Warn("time step exceeds the explicit stability limit",
			zap.Float64("dt", p.DT), zap.Float64("limit", p.CFLLimit()))
	}

	src, err := functions.Load(cfg.Functions.Force, cfg.Functions.InitialCondition)
	if err != nil {
		return nil, err
	}
	fns, err := functions.Build(src, logger)
	if err != nil {
		return nil, err
	}
	return &runConfig{cfg: cfg, p: p, fns: fns}, nil
}

// newEngine opens the configured device backend and builds an engine on it.
func (rc *runConfig) newEngine(backend string) (*engine.Engine, error) {
	if backend == params.BackendHost {
		return nil, fmt.Errorf("backend %q has no device", backend)
	}
	dev, err := device.Open(backend, device.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return engine.New(rc.p, dev, rc.fns, engine.Options{
		Logger:      logger,
		Debug:       rc.cfg.Debug,
		TemplateDir: rc.cfg.Kernels.TemplateDir,
	})
}
