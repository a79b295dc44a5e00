// Package logging provides the structured logging interface used by the
// dispatcher, the parallel mode coordinator and the fidelity models. It
// hides the zerolog backend behind a small Logger interface so that
// components can be tested with a buffer or silenced with Nop.
package logging
