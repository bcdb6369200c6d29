package platform

import (
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// DefaultLimiters builds one token bucket per platform. Concurrent syncs of
// different credentials on the same platform share the platform's bucket,
// so the per-platform ceiling holds regardless of worker count.
func DefaultLimiters() map[model.Platform]*rate.Limiter {
	return map[model.Platform]*rate.Limiter{
		model.PlatformBilibili:  rate.NewLimiter(rate.Limit(1), 2),
		model.PlatformDouban:    rate.NewLimiter(rate.Limit(0.5), 1),
		model.PlatformGitHub:    rate.NewLimiter(rate.Limit(2), 5),
		model.PlatformHoYoverse: rate.NewLimiter(rate.Limit(0.5), 1),
		model.PlatformJellyfin:  rate.NewLimiter(rate.Limit(5), 10),
		model.PlatformSteam:     rate.NewLimiter(rate.Limit(1), 3),
	}
}

// NewClients wires the six production adapters against the given limiters.
func NewClients(limiters map[model.Platform]*rate.Limiter) map[model.Platform]driven.PlatformClient {
	return map[model.Platform]driven.PlatformClient{
		model.PlatformBilibili:  NewBilibiliClient(limiters[model.PlatformBilibili]),
		model.PlatformDouban:    NewDoubanClient(limiters[model.PlatformDouban]),
		model.PlatformGitHub:    NewGitHubClient(limiters[model.PlatformGitHub]),
		model.PlatformHoYoverse: NewHoYoverseClient(limiters[model.PlatformHoYoverse]),
		model.PlatformJellyfin:  NewJellyfinClient(limiters[model.PlatformJellyfin]),
		model.PlatformSteam:     NewSteamClient(limiters[model.PlatformSteam]),
	}
}
