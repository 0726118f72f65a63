package audit

// Decision values recorded for verification requests.
const (
	DecisionApproved        = "approved"
	DecisionApprovedSession = "approved_session"
	DecisionRejected        = "rejected"
	DecisionCancelled       = "cancelled"
)

// Entry is one line in the hash-chained JSONL audit log.
// Only fixed-shape fields so json.Marshal output is deterministic
// for hashing.
type Entry struct {
	Timestamp      string `json:"ts"`
	Port           uint16 `json:"port"`
	TaskID         string `json:"task_id"`
	Action         string `json:"action"`
	Reason         string `json:"reason"`
	Decision       string `json:"decision"`
	VerificationID string `json:"verification_id"`
	Button         string `json:"button,omitempty"`
	Message        string `json:"message,omitempty"`
	PrevHash       string `json:"prev_hash"`
}
