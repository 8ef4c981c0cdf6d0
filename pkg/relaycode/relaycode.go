// Package relaycode provides the public API for embedding the relay service.
// This is the stable API for external consumers.
package relaycode

import (
	"github.com/tjfontaine/relaycode/internal/runtime"
)

// App is the relay service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options.
// Example:
//
//	app, err := relaycode.New(
//	    relaycode.WithFileConfig("config.yaml"),
//	    relaycode.WithSQLiteJournal("./data/relaycode.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Seed data
	WithSeedFile   = runtime.WithSeedFile
	WithSeedSource = runtime.WithSeedSource

	// Event journal
	WithSQLiteJournal = runtime.WithSQLiteJournal
	WithJournal       = runtime.WithJournal

	// Advanced options
	WithLogger   = runtime.WithLogger
	WithListener = runtime.WithListener
)
