// Package app provides the application context for netbsd-imager.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Config    *config.Config          // Effective build configuration
//	    Exec      system.CommandExecutor  // Host tool runner
//	    Locator   Locator                 // Release locator
//	    NewBooter pipeline.BooterFunc     // Emulator factory
//	}
//
// # Creating an App
//
// Use New with functional options:
//
//	// Production usage
//	a := app.New(app.WithConfig(cfg))
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithConfig(testConfig),
//	    app.WithExecutor(mockExecutor),
//	    app.WithLocator(fakeLocator),
//	    app.WithBooter(fakeBooter),
//	)
//
// # Available Options
//
//	WithConfig(cfg)         // Build configuration
//	WithExecutor(exec)      // Custom command executor
//	WithLocator(locator)    // Custom release locator
//	WithBooter(factory)     // Custom emulator factory
package app
