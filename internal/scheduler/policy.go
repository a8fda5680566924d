package scheduler

import "github.com/starford/attune/internal/models"

// Policy orders the eligible targets into a rotation queue.
type Policy interface {
	Order(targets []models.Target) []models.Target
}

// RoundRobin keeps registration order. Priority and urgency are not
// consulted; a weighted policy can be plugged in with WithPolicy.
type RoundRobin struct{}

// Order implements Policy.
func (RoundRobin) Order(targets []models.Target) []models.Target {
	out := make([]models.Target, len(targets))
	copy(out, targets)
	return out
}
