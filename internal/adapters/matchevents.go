package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"

	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
)

// MatchEventsAdapter extracts schema.org SportsEvent blocks embedded as
// LD+JSON on a fixtures page, emitting the teams first and then the event.
type MatchEventsAdapter struct {
	source string
	url    string
	now    func() time.Time
}

func NewMatchEventsAdapter(source, url string) *MatchEventsAdapter {
	return &MatchEventsAdapter{source: source, url: url, now: time.Now}
}

func (a *MatchEventsAdapter) Name() string { return a.source }

func (a *MatchEventsAdapter) DefaultSchedule() job.Schedule {
	return job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour}
}

type ldTeam struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type ldSportsEvent struct {
	Type      string `json:"@type"`
	ID        string `json:"@id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	StartDate string `json:"startDate"`
	HomeTeam  ldTeam `json:"homeTeam"`
	AwayTeam  ldTeam `json:"awayTeam"`
}

func (a *MatchEventsAdapter) Run(ctx context.Context, fetcher Fetcher, emit EmitFunc) error {
	out, err := fetcher.Fetch(ctx, fetch.Request{
		URL:           a.url,
		Retries:       3,
		BackoffBase:   2 * time.Second,
		Headless:      true,
		HandleConsent: true,
		Readiness:     fetch.Readiness{WaitSelector: "script[type='application/ld+json']"},
	}, fetch.Hooks{})
	if err != nil {
		return fmt.Errorf("fetch fixtures page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.HTML))
	if err != nil {
		return fmt.Errorf("parse fixtures page: %w", err)
	}

	var emitErr error
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		var ev ldSportsEvent
		if err := sonic.UnmarshalString(block.Text(), &ev); err != nil {
			// Not every block is an event; skip unparseable ones.
			return true
		}
		if ev.Type != "SportsEvent" || ev.Name == "" {
			return true
		}
		if emitErr = a.emitEvent(emit, ev); emitErr != nil {
			return false
		}
		return true
	})
	if emitErr != nil {
		return fmt.Errorf("emit match record: %w", emitErr)
	}

	return nil
}

func (a *MatchEventsAdapter) emitEvent(emit EmitFunc, ev ldSportsEvent) error {
	observed := a.now()

	for _, team := range []ldTeam{ev.HomeTeam, ev.AwayTeam} {
		if team.Name == "" {
			continue
		}
		rec := record.NormalizedRecord{
			EntityType: record.EntityTypeTeam,
			Source:     a.source,
			ExternalID: "team:" + slug(team.Name),
			Name:       team.Name,
			Attributes: map[string]string{},
			SourceURL:  a.url,
			ObservedAt: observed,
		}
		if err := emit(rec); err != nil {
			return err
		}
	}

	externalID := ev.ID
	if externalID == "" {
		externalID = ev.URL
	}
	if externalID == "" {
		externalID = "event:" + slug(ev.Name+" "+ev.StartDate)
	}

	attrs := map[string]string{}
	if ev.StartDate != "" {
		attrs["start_date"] = ev.StartDate
	}
	if ev.HomeTeam.Name != "" {
		attrs["home_team"] = ev.HomeTeam.Name
	}
	if ev.AwayTeam.Name != "" {
		attrs["away_team"] = ev.AwayTeam.Name
	}

	return emit(record.NormalizedRecord{
		EntityType: record.EntityTypeEvent,
		Source:     a.source,
		ExternalID: externalID,
		Name:       ev.Name,
		Attributes: attrs,
		SourceURL:  a.url,
		ObservedAt: observed,
	})
}

func slug(s string) string {
	return strings.ReplaceAll(record.NormalizedName(s), " ", "-")
}
