package resilience

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/profile-finder/internal/model"
)

// Error classes recorded on dead letters.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DeadLetter records a person whose resolution failed after all retries.
type DeadLetter struct {
	ID        string            `json:"id"`
	BatchID   string            `json:"batch_id"`
	Query     model.PersonQuery `json:"query"`
	Error     string            `json:"error"`
	ErrorType string            `json:"error_type"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewDeadLetter builds a dead letter for q.
func NewDeadLetter(batchID string, q model.PersonQuery, err error, attempts int) DeadLetter {
	dl := DeadLetter{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		Query:     q,
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		dl.Error = err.Error()
	}
	return dl
}

// DeadLetterFilter narrows dead-letter listings.
type DeadLetterFilter struct {
	BatchID   string `json:"batch_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ClassifyError categorizes an error as transient or permanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}
