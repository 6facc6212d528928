// Package engine manages the local container engine required by
// container-backed cross builds: launching the daemon, polling until it is
// responsive and force-terminating it once the build is done.
package engine
