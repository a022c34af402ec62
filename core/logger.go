package core

// CommandLogger is implemented by the durability layer. A Dataset calls it
// to append a state-changing command to the active log — including the DEL
// synthesized by lazy expiry, so the log stays a faithful journal of every
// mutation (spec.md §9, "Lazy expiry vs. the log"). Kept as a narrow
// interface here, rather than importing the durability package directly, to
// avoid a core ⇄ durability import cycle: durability.Store already needs
// core.Cell to serialize snapshots.
type CommandLogger interface {
	LogCommand(cmd string, args []string) error
}
