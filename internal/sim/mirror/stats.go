package mirror

// Stats counts degraded-but-tolerated paths. None of these are fatal;
// a rising counter is how desync becomes visible to operators.
type Stats struct {
	SnapshotsApplied uint64
	EventsApplied    uint64

	StaleEvents      uint64
	DuplicateAdds    uint64
	SlotMismatches   uint64
	MalformedRows    uint64
	SeparationBreach uint64
	PoolExhausted    uint64
	ForcedRecoveries uint64
}
