package protocol

// SlotRow is one row of the contract's fixed-length spawn table.
// X and Y are in the ledger's compact grid (0..LedgerCoordMax);
// the client maps them to world pixels.
type SlotRow struct {
	Slot      int    `json:"slot"`
	ID        string `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Attempts  int    `json:"attempts"`
	Active    bool   `json:"active"`
	SpawnedAt uint64 `json:"spawned_at"`
}

// LedgerCoordMax is the inclusive upper bound of the contract's
// coordinate grid on each axis.
const LedgerCoordMax = 1023

func (r *SlotRow) validate() error {
	if r.Slot < 0 {
		return codedErrf(ErrProtoBadEvent, "slot %d is negative", r.Slot)
	}
	if r.Active && r.ID == "" {
		return codedErrf(ErrProtoBadEvent, "active row in slot %d has empty id", r.Slot)
	}
	if r.X < 0 || r.X > LedgerCoordMax || r.Y < 0 || r.Y > LedgerCoordMax {
		return codedErrf(ErrProtoBadEvent, "slot %d position (%d,%d) outside ledger grid", r.Slot, r.X, r.Y)
	}
	return nil
}

// TableMsg is a full snapshot of the spawn table, sent in response to
// TABLE_REQ and unsolicited after chain reorgs.
type TableMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id,omitempty"`
	Block           uint64    `json:"block"`
	Rows            []SlotRow `json:"rows"`
}

// ValidateTable shape-checks a snapshot. Rows that fail validation are
// returned separately so the caller can log and skip them without
// rejecting the whole snapshot.
func ValidateTable(m TableMsg) (good []SlotRow, bad []error) {
	for i := range m.Rows {
		row := m.Rows[i]
		if err := row.validate(); err != nil {
			bad = append(bad, err)
			continue
		}
		row.ID = CanonicalID(row.ID)
		good = append(good, row)
	}
	return good, bad
}
