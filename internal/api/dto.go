package api

import (
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/rotationservice"
	"github.com/starford/attune/internal/scheduler"
)

// Target is the target response type (aliased from the domain layer).
type Target = models.Target

// CreateTargetRequest is the request body for registering a target.
type CreateTargetRequest = models.TargetInput

// UpdateTargetRequest is the request body for a partial target update.
type UpdateTargetRequest = models.TargetPatch

// TargetListResponse wraps target listings.
type TargetListResponse struct {
	Targets []Target `json:"targets" validate:"required"`
	Total   int      `json:"total" example:"3" validate:"required"`
}

// ReadingSessionRequest overrides the default reading parameters.
type ReadingSessionRequest struct {
	BaselineToneArm *float64 `json:"baseline_tone_arm" example:"5"`
	Sensitivity     *float64 `json:"sensitivity" example:"1"`
}

func (r ReadingSessionRequest) params(base reading.SessionParams) reading.SessionParams {
	p := base
	if r.BaselineToneArm != nil {
		p.BaselineToneArm = *r.BaselineToneArm
	}
	if r.Sensitivity != nil {
		p.Sensitivity = *r.Sensitivity
	}
	return p
}

// StartRotationRequest is the request body for starting a rotation.
type StartRotationRequest = rotationservice.StartRequest

// RotationListResponse wraps rotation listings.
type RotationListResponse struct {
	Rotations []scheduler.Status `json:"rotations" validate:"required"`
}

// QueueResponse wraps a queue preview.
type QueueResponse struct {
	Entries []scheduler.QueueEntry `json:"entries" validate:"required"`
}
