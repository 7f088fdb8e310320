// Package engine is Stroma's single dispatch point (spec.md §9): every
// messaging-surface command arrives as one tagged Command variant and
// passes through one switch — rate limiting, audit recording, delta
// application, invariant validation, health-monitor cascade, and commit —
// rather than being handled by scattered per-command dispatch logic.
package engine

import "github.com/roder/stroma/pkg/models"

// CommandKind tags a Command's variant, mirroring spec.md §6's messaging
// surface: /create-group, /add-seed, /invite, /vouch, /flag,
// /reject-intro, /status, /mesh, /propose, /vote, /audit.
type CommandKind uint8

const (
	CmdCreateGroup CommandKind = iota
	CmdAddSeed
	CmdInvite
	CmdVouch
	CmdFlag
	CmdRejectIntro
	CmdStatus
	CmdMesh
	CmdPropose
	CmdVote
	CmdAudit
)

// ExitCode mirrors spec.md §6's command exit codes 0-5.
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitInvalidUpdate
	ExitInvalidState
	ExitRateLimited
	ExitUnauthorized
	ExitTransient
)

// Command is the single tagged-union request type dispatch operates on.
// Exactly the fields relevant to Kind are meaningful, the same flat-value
// convention models.StateDelta uses.
type Command struct {
	Kind CommandKind

	Actor models.MemberHash
	Group string

	Target  models.MemberHash // invite/vouch/flag/reject-intro
	AuditOf models.MemberHash // /audit

	ConfigKey   string // /propose config
	ConfigValue string

	ProposalID models.ProposalId // /vote, /audit-by-proposal
	VoteOption int               // /vote option index

	MeshLimit int // /mesh [n]
}

// Result is what Dispatch returns: the exit code, any human-readable
// message for the messaging surface, and the deltas that were committed
// (zero deltas on a non-OK exit).
type Result struct {
	Code    ExitCode
	Message string
	Deltas  []models.StateDelta
	// Payload carries structured data for read-only commands (/status,
	// /mesh, /audit) that a plain Message string can't express. Nil for
	// mutating commands.
	Payload interface{}
}
