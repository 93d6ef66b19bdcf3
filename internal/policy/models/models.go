// Package models holds the persistence-facing records for policies and
// their append-only version history.
package models

import "time"

// Policy is the owning record for a version history. Conceptually a
// "permission": roles aggregate policies, principals aggregate roles.
type Policy struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Version is one sealed revision of a policy document. Versions are never
// deleted; sealing appends, rollback only flips which version is default.
//
// Invariant: at most one version per policy has IsDefault=true at any
// committed state.
type Version struct {
	VersionID     string
	PolicyID      string
	VersionNumber int
	IsDefault     bool
	DocumentJSON  string
	CreatedAt     time.Time
	CreatedBy     string
}

// PrincipalPolicy is a policy reachable through a principal's roles,
// carrying the current default version's document.
type PrincipalPolicy struct {
	PolicyID     string
	Name         string
	RoleName     string
	DocumentJSON string
}

// Impact summarizes the blast radius of changing a policy: how many roles
// and users are bound to it.
type Impact struct {
	Roles int
	Users int
}
