package domain

import (
	"github.com/yungbote/karibu-backend/internal/domain/dna"
	"github.com/yungbote/karibu-backend/internal/domain/documents"
)

const (
	DocumentStatusUploaded   = documents.StatusUploaded
	DocumentStatusProcessing = documents.StatusProcessing
	DocumentStatusProcessed  = documents.StatusProcessed
	DocumentStatusFailed     = documents.StatusFailed

	SynthesisIdle    = dna.SynthesisIdle
	SynthesisRunning = dna.SynthesisRunning
	SynthesisDone    = dna.SynthesisDone
	SynthesisFailed  = dna.SynthesisFailed

	ApprovalPending  = dna.ApprovalPending
	ApprovalApproved = dna.ApprovalApproved
	ApprovalRejected = dna.ApprovalRejected
)

type Document = documents.Document

type Topic = dna.Topic
type Subtopic = dna.Subtopic
type Value = dna.Value
