package custody

import "time"

// CalibrationCertificate links a received-from-lab event to the external
// certificate document. One certificate is created per lab return.
type CalibrationCertificate struct {
	ID        int64
	EventID   int64
	Link      string
	CreatedAt time.Time
}
