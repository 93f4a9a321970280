// Package executor holds the worker side of every step kind. Dispatch is
// static: each kind maps to one module at startup.
package executor

import (
	"fmt"
	"log/slog"

	"github.com/me/ilcdirac/internal/detector"
	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/internal/storage"
	"github.com/me/ilcdirac/pkg/model"
)

// Deps are the worker services the modules use.
type Deps struct {
	Software  *software.Area
	Detectors *detector.Fetcher
	Storage   *storage.Registry
	// MokkaDB prepares the detector database Mokka reads. Nil skips it.
	MokkaDB LocalDB
	Logger  *slog.Logger
}

// Registry maps step kinds to their modules.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	modules map[model.StepKind]execution.Module
	logger  *slog.Logger
}

// NewRegistry returns a registry holding a module for every step kind.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		modules: make(map[model.StepKind]execution.Module),
		logger:  deps.Logger.With("component", "executor-registry"),
	}
	d := &deps
	r.Register(&Mokka{app: newApp(model.KindMokka, "Mokka", "mokka", "numberOfEvents", d)})
	r.Register(&Marlin{app: newApp(model.KindMarlin, "Marlin", "marlin", "EvtsToProcess", d)})
	r.Register(&SLIC{app: newApp(model.KindSLIC, "SLIC", "slic", "numberOfEvents", d)})
	r.Register(&LCSIM{app: newApp(model.KindLCSIM, "LCSIM", "lcsim", "EvtsToProcess", d)})
	r.Register(&SLICPandora{app: newApp(model.KindSLICPandora, "SLICPandora", "slicpandora", "EvtsToProcess", d)})
	r.Register(&Whizard{app: newApp(model.KindWhizard, "Whizard", "whizard", "NbOfEvts", d)})
	r.Register(&RootMacro{app: newApp(model.KindRootMacro, "ROOT", "root", "", d)})
	r.Register(&RootExecutable{app: newApp(model.KindRootExecutable, "ROOT", "root", "", d)})
	r.Register(&ApplicationScript{app: newApp(model.KindApplicationScript, "ApplicationScript", "", "", d)})
	r.Register(&GetSRM{app: newApp(model.KindGetSRM, "GetSRMFile", "", "", d)})
	r.Register(&StdHepConverter{app: newApp(model.KindStdHepConverter, "StdHepConverter", "lcio", "", d)})
	return r
}

// Register adds a module to the registry, keyed by its Kind().
func (r *Registry) Register(m execution.Module) {
	r.modules[m.Kind()] = m
	r.logger.Debug("module registered", "kind", m.Kind())
}

// Get returns the module for kind or an error if none is registered.
func (r *Registry) Get(kind model.StepKind) (execution.Module, error) {
	m, ok := r.modules[kind]
	if !ok {
		return nil, fmt.Errorf("no module registered for step kind %q", kind)
	}
	return m, nil
}
