package fetch

import (
	"fmt"
	"sync"
	"time"
)

// Profile carries the identity-spoofing parameters for one attempt.
type Profile struct {
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	Headers        map[string]string
}

// ProfileStrategy hands out the profile for each attempt. The fetch layer
// holds no rotation cursor; callers own the strategy and may share it
// across requests.
type ProfileStrategy interface {
	Next() Profile
}

// RoundRobinProfiles cycles through a fixed profile list, safe for
// concurrent use.
type RoundRobinProfiles struct {
	mu       sync.Mutex
	profiles []Profile
	cursor   int
}

func NewRoundRobinProfiles(profiles ...Profile) *RoundRobinProfiles {
	return &RoundRobinProfiles{profiles: profiles}
}

func (r *RoundRobinProfiles) Next() Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.profiles) == 0 {
		return Profile{}
	}
	p := r.profiles[r.cursor%len(r.profiles)]
	r.cursor++
	return p
}

// Readiness describes when a navigated page counts as rendered. The first
// set field wins; an empty value waits for the document body.
type Readiness struct {
	WaitSelector     string
	WaitTextContains string
	// WaitSettle holds the page for a fixed window after navigation,
	// the closest practical stand-in for network idle.
	WaitSettle time.Duration
}

// Request describes one fetch call. Built per call, never reused.
type Request struct {
	URL           string
	Readiness     Readiness
	Timeout       time.Duration
	Retries       int
	BackoffBase   time.Duration
	Headless      bool
	Profile       Profile
	Profiles      ProfileStrategy
	HandleConsent bool
	ScrollRounds  int
}

func (r Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("fetch request url is required")
	}
	if r.Retries < 0 {
		return fmt.Errorf("fetch request retries must not be negative")
	}
	if r.ScrollRounds < 0 {
		return fmt.Errorf("fetch request scroll rounds must not be negative")
	}

	return nil
}

func (r Request) attempts() int {
	if r.Retries < 1 {
		return 1
	}
	return r.Retries
}
