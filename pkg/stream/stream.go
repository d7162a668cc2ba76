// Package stream provides the public API for embedding the trial stream
// server. This is the stable API for external consumers.
package stream

import (
	"github.com/karenlarocque/feature-forgetting/internal/runtime"
)

// App is the main entry point for running the trial stream server.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options.
// Example:
//
//	app, err := stream.New(
//	    stream.WithLogger(logger),
//	    stream.WithFileConfig("config.yaml"),
//	)
var New = runtime.New

// Configuration options
var (
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider
	WithLogStore       = runtime.WithLogStore
	WithSink           = runtime.WithSink
	WithRegistry       = runtime.WithRegistry
	WithLogger         = runtime.WithLogger
)
