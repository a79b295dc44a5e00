// Package parallel coordinates which fidelity model distributed workers
// serve.
//
// The controlling side owns a Coordinator. Every time the live fidelity or
// its key changes, the Coordinator broadcasts a stop announcement for the
// previous model followed by the new state, response mode and model key.
// Workers run Serve on the announcement stream and route the evaluations
// they receive to the designated model until the terminal Idle
// announcement arrives.
package parallel
