package models

import "time"

// NegotiationStatus represents the lifecycle of a tutoring request.
type NegotiationStatus string

// Possible negotiation statuses.
const (
	NegotiationStatusPending  NegotiationStatus = "PENDING"
	NegotiationStatusAccepted NegotiationStatus = "ACCEPTED"
	NegotiationStatusRejected NegotiationStatus = "REJECTED"
)

// Negotiation is the accepted tutoring request a contract is created from.
type Negotiation struct {
	ID              string            `db:"id" json:"id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	TutorID         string            `db:"tutor_id" json:"tutor_id"`
	SubjectID       string            `db:"subject_id" json:"subject_id"`
	PricePerSession int64             `db:"price_per_session" json:"price_per_session"`
	SessionCount    int               `db:"session_count" json:"session_count"`
	Status          NegotiationStatus `db:"status" json:"status"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}
