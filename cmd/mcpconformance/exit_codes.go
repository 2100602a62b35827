package main

// Exit codes, so CI wrappers can tell harness faults from conformance
// verdicts.

const (
	// ExitCodeSuccess indicates all executed scenarios passed.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a harness-side fault (setup, I/O).
	ExitCodeGeneralError = 1

	// ExitCodeConformanceFailure indicates the client or server under
	// test failed at least one scenario.
	ExitCodeConformanceFailure = 2

	// ExitCodeConfigError indicates invalid flags or an unreadable
	// baseline file.
	ExitCodeConfigError = 4
)
