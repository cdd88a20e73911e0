package iss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/rs/zerolog/log"
)

var (
	now = time.Now
	// sleep is replaced in tests.
	sleep core.SleepFunc = core.Sleep

	peopleRetry = core.RetryPolicy{Attempts: 3, Initial: time.Second, Max: 8 * time.Second}
)

type api interface {
	PeopleInSpace(ctx context.Context) (People, error)
	Position(ctx context.Context) (Position, error)
	FetchTLE(ctx context.Context) (TLE, error)
}

func newPeopleCoordinator(client api, interval time.Duration) *core.Coordinator[People] {
	return core.NewCoordinator("iss_people", interval, func(ctx context.Context) (People, error) {
		return core.Retry(ctx, peopleRetry, sleep, client.PeopleInSpace)
	})
}

func newPositionCoordinator(client api, interval time.Duration) *core.Coordinator[Position] {
	return core.NewCoordinator("iss_position", interval, client.Position)
}

// CachedTLE is the on-disk TLE cache content.
type CachedTLE struct {
	FetchedAt time.Time `json:"fetched_at"`
	TLE
}

// tleSource fetches the TLE, going through a file cache that is considered
// fresh for one update interval.
type tleSource struct {
	client   api
	path     string
	interval time.Duration
}

func cachePath(cacheDir string, entryId string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("iss_tle_%s.json", entryId))
}

func (s *tleSource) load() (CachedTLE, bool) {
	cached := CachedTLE{}
	content, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("Unable to read TLE cache.")
		}
		return cached, false
	}
	if err := json.Unmarshal(content, &cached); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring corrupted TLE cache.")
		return cached, false
	}
	if err := cached.validate(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring invalid TLE cache.")
		return CachedTLE{}, false
	}
	return cached, true
}

func (s *tleSource) save(cached CachedTLE) error {
	content, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(s.path, content, 0o600)
}

func (s *tleSource) fetch(ctx context.Context) (CachedTLE, error) {
	cached, hasCache := s.load()
	if hasCache && now().Sub(cached.FetchedAt) < s.interval {
		return cached, nil
	}

	tle, err := s.client.FetchTLE(ctx)
	if err != nil {
		if hasCache {
			log.Warn().Err(err).Time("fetched_at", cached.FetchedAt).Msg("Unable to fetch TLE, using cached data.")
			return cached, nil
		}
		return CachedTLE{}, core.UpdateFailed(err, "unable to fetch TLE and no cache available")
	}

	fresh := CachedTLE{FetchedAt: now().UTC(), TLE: tle}
	if err := s.save(fresh); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Unable to write TLE cache.")
	}
	return fresh, nil
}

func newTleCoordinator(source *tleSource) *core.Coordinator[CachedTLE] {
	return core.NewCoordinator("iss_tle", source.interval, source.fetch)
}
