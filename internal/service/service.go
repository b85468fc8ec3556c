// Package service implements the admission, queue, reservation and
// finalization logic on top of the repositories and the shared counter
// store.
package service

import (
	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/messaging"
	"bilet/internal/repository"
	"bilet/internal/search"
)

// Services bundles all business services.
type Services struct {
	Admission *AdmissionService
	Tokens    *TokenService
	Liveness  *LivenessService
	Bookings  *BookingService
	Showings  *ShowingService
	Sweeper   *SweeperService
}

// New wires the services. index may be nil when search is disabled.
func New(repos *repository.Repositories, slots cache.SlotStore, nats messaging.Publisher, index search.ShowingIndex, cfg *config.Config) *Services {
	tokens := NewTokenService(repos, slots, nats, cfg)
	bookings := NewBookingService(repos, tokens, nats, cfg)
	return &Services{
		Admission: NewAdmissionService(repos, slots, tokens, cfg),
		Tokens:    tokens,
		Liveness:  NewLivenessService(repos, slots, tokens, cfg),
		Bookings:  bookings,
		Showings:  NewShowingService(repos, index),
		Sweeper:   NewSweeperService(repos, slots, tokens, bookings, cfg),
	}
}
