package protocol

// HELLO (client -> gateway)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Player          string `json:"player"` // wallet address, checksummed
	SinceSeq        uint64 `json:"since_seq,omitempty"`
}

// WELCOME (gateway -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	MaxSlots        int    `json:"max_slots"`
	MaxAttempts     int    `json:"max_attempts"`
	CurrentSeq      uint64 `json:"current_seq"`
}

// TABLE_REQ (client -> gateway): ask for a full spawn-table snapshot.
type TableReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

// SUBMIT (client -> gateway/signer): one catch attempt. The outcome is
// never in the ACK; it arrives later as a CAUGHT or FAILED event and is
// correlated by actor id, not by req_id.
type SubmitMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Slot            int    `json:"slot"`
	TargetID        string `json:"target_id"`
	Ball            string `json:"ball"`
}

// ACK (gateway -> client): receipt for TABLE_REQ/SUBMIT.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
}
