// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/channelwatch/internal/dvr"
)

// JobProvider caches recording jobs keyed by job id.
type JobProvider struct {
	cache *ttlCache[map[string]dvr.Job]
}

// NewJobProvider builds the provider over the DVR client.
func NewJobProvider(client *dvr.Client, ttl time.Duration) *JobProvider {
	return &JobProvider{
		cache: newTTLCache("jobs", ttl, func(ctx context.Context) (map[string]dvr.Job, error) {
			jobs, err := client.Jobs(ctx)
			if err != nil {
				return nil, err
			}
			byID := make(map[string]dvr.Job, len(jobs))
			for _, j := range jobs {
				if j.ID != "" {
					byID[j.ID] = j
				}
			}
			return byID, nil
		}),
	}
}

// Job looks up a job by id, refreshing once on a miss: a jobs.created event
// usually arrives before the cached list knows the job.
func (p *JobProvider) Job(ctx context.Context, id string) (dvr.Job, error) {
	byID, err := p.cache.get(ctx)
	if err != nil {
		return dvr.Job{}, err
	}
	if job, ok := byID[id]; ok {
		return job, nil
	}

	if err := p.cache.refresh(ctx); err != nil {
		return dvr.Job{}, err
	}
	byID, err = p.cache.get(ctx)
	if err != nil {
		return dvr.Job{}, err
	}
	if job, ok := byID[id]; ok {
		return job, nil
	}
	return dvr.Job{}, fmt.Errorf("job %s: %w", id, dvr.ErrNotFound)
}

// All returns every cached job.
func (p *JobProvider) All(ctx context.Context) ([]dvr.Job, error) {
	byID, err := p.cache.get(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]dvr.Job, 0, len(byID))
	for _, j := range byID {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Refresh forces a job list reload. The recording watchdog calls this after
// a recovery so the next lookups see fresh state.
func (p *JobProvider) Refresh(ctx context.Context) error {
	return p.cache.refresh(ctx)
}
