// Package orchestration drives studies over a hierarchical dispatcher: it
// batches sample evaluations through the asynchronous interface, estimates
// expectations with a two-fidelity control variate and reports progress to
// the presentation layer through ProgressReporter and ResultPresenter.
package orchestration
