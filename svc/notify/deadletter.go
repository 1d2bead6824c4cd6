package notify

import "time"

// DeadLetterRecord is the immutable record of a notification that exhausted
// its retry budget. (EventID, Channel) is unique.
type DeadLetterRecord struct {
	EventID       string    `json:"eventId" bson:"eventId"`
	UserID        string    `json:"userId" bson:"userId"`
	Channel       Channel   `json:"channel" bson:"channel"`
	Recipient     string    `json:"recipient" bson:"recipient"`
	Subject       string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Content       string    `json:"content" bson:"content"`
	ErrorReason   string    `json:"errorReason" bson:"errorReason"`
	FailedAt      time.Time `json:"failedAt" bson:"failedAt"`
	OriginalJobID string    `json:"originalJobId" bson:"originalJobId"`
	Attempts      int       `json:"attempts" bson:"attempts"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}
