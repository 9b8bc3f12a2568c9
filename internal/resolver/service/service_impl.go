package service

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

type Service struct {
	log *zap.Logger
}

func NewService(p ServiceParam) resolverdomain.Resolver {
	return &Service{
		log: p.Log.Named("resolver.service"),
	}
}

// Resolve performs no mutation and no I/O; callers hand it a consistent
// candidate snapshot.
func (s *Service) Resolve(
	candidates []resolverdomain.Candidate,
	at time.Time,
	explicitLineID *snowflake.ID,
) (*resolverdomain.Candidate, error) {
	if explicitLineID != nil && *explicitLineID != 0 {
		for i := range candidates {
			if candidates[i].Snapshot.Line.ID == *explicitLineID {
				return &candidates[i], nil
			}
		}
		// The operator's chosen line is no longer eligible; do not
		// silently rebill against a different line.
		return nil, resolverdomain.ErrStaleAssignment
	}

	if len(candidates) == 0 {
		return nil, resolverdomain.ErrNoEligibleLine
	}

	ranked := make([]resolverdomain.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rank(ranked[i], ranked[j]) < 0
	})

	return &ranked[0], nil
}
