// Package deployer orchestrates a full deploy: readying the container
// engine, cross-building the release, shipping it over SSH, restarting the
// remote service and recording the result. Every step is fail-fast; the
// first error aborts the run.
package deployer
