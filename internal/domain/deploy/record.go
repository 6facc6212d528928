package deploy

import "time"

// Actor identifies who performed a deploy.
type Actor struct {
	// Hostname is the machine name the deploy was run from.
	Hostname string `json:"hostname"`
	// Username is the system user who ran the deploy.
	Username string `json:"username"`
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Record describes one successful deploy of a target.
type Record struct {
	// Target is the deploy target name.
	Target string `json:"target"`
	// Version is the semantic version of the deployed release.
	Version string `json:"version"`
	// Checksum is the base64-encoded SHA-512 digest of the shipped binary.
	Checksum string `json:"checksum"`
	// Timestamp is when the deploy finished.
	Timestamp time.Time `json:"timestamp"`
	// DeployedBy identifies who ran the deploy.
	DeployedBy *Actor `json:"deployed_by"`
}

// Clone returns a copy of the record to avoid leaking internal references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	return &Record{
		Target:     r.Target,
		Version:    r.Version,
		Checksum:   r.Checksum,
		Timestamp:  r.Timestamp,
		DeployedBy: r.DeployedBy.Clone(),
	}
}
