package models

import "time"

// ClassStatus represents the teaching engagement lifecycle.
type ClassStatus string

// Possible class statuses.
const (
	ClassStatusScheduled ClassStatus = "SCHEDULED"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusFinished  ClassStatus = "FINISHED"
)

// Class is the teaching arrangement created once a contract is fully signed.
type Class struct {
	ID              string      `db:"id" json:"id"`
	ContractID      string      `db:"contract_id" json:"contract_id"`
	StudentID       string      `db:"student_id" json:"student_id"`
	TutorID         string      `db:"tutor_id" json:"tutor_id"`
	SubjectID       string      `db:"subject_id" json:"subject_id"`
	SessionCount    int         `db:"session_count" json:"session_count"`
	SessionDuration int         `db:"session_duration_min" json:"session_duration_min"`
	Status          ClassStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}
