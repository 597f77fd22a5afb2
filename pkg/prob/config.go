package prob

import "time"

type BrowserOptions struct {
	// Name of the registered engine to drive the browser with
	Engine   string
	Headless bool
	SlowMo   time.Duration
}

type OutputOptions struct {
	// Directory screenshots are written into. Empty means the working directory.
	Directory string
}

type PreflightOptions struct {
	Enabled bool
	Timeout time.Duration
}

type RunOptions struct {
	Browser   BrowserOptions
	Output    OutputOptions
	Preflight PreflightOptions
}
