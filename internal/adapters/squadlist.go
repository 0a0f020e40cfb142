package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
)

// SquadListAdapter extracts player records from a club squad page. Rows
// carry the player name, birth date, position and country.
type SquadListAdapter struct {
	source string
	url    string
	now    func() time.Time
}

func NewSquadListAdapter(source, url string) *SquadListAdapter {
	return &SquadListAdapter{source: source, url: url, now: time.Now}
}

func (a *SquadListAdapter) Name() string { return a.source }

func (a *SquadListAdapter) DefaultSchedule() job.Schedule {
	return job.Schedule{Kind: job.ScheduleKindInterval, Every: 6 * time.Hour}
}

func (a *SquadListAdapter) Run(ctx context.Context, fetcher Fetcher, emit EmitFunc) error {
	out, err := fetcher.Fetch(ctx, fetch.Request{
		URL:           a.url,
		Retries:       3,
		BackoffBase:   2 * time.Second,
		Headless:      true,
		HandleConsent: true,
		ScrollRounds:  2,
		Readiness:     fetch.Readiness{WaitSelector: "table.squad"},
	}, fetch.Hooks{})
	if err != nil {
		return fmt.Errorf("fetch squad page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out.HTML))
	if err != nil {
		return fmt.Errorf("parse squad page: %w", err)
	}

	var emitErr error
	doc.Find("table.squad tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		rec, ok := a.parseRow(row)
		if !ok {
			return true
		}
		if err := emit(rec); err != nil {
			emitErr = err
			return false
		}
		return true
	})
	if emitErr != nil {
		return fmt.Errorf("emit player record: %w", emitErr)
	}

	return nil
}

func (a *SquadListAdapter) parseRow(row *goquery.Selection) (record.NormalizedRecord, bool) {
	externalID, ok := row.Attr("data-player-id")
	if !ok || externalID == "" {
		// Fall back to the profile link slug.
		href, _ := row.Find("td.name a").Attr("href")
		externalID = strings.TrimPrefix(strings.Trim(href, "/"), "player/")
	}
	name := strings.TrimSpace(row.Find("td.name").Text())
	if externalID == "" || name == "" {
		return record.NormalizedRecord{}, false
	}

	attrs := map[string]string{}
	if v := strings.TrimSpace(row.Find("td.birthdate").Text()); v != "" {
		attrs["birth_date"] = v
	}
	if v := strings.TrimSpace(row.Find("td.position").Text()); v != "" {
		attrs["position"] = v
	}
	if v := strings.TrimSpace(row.Find("td.country").Text()); v != "" {
		attrs["country"] = v
	}

	return record.NormalizedRecord{
		EntityType: record.EntityTypePerson,
		Source:     a.source,
		ExternalID: externalID,
		Name:       name,
		Attributes: attrs,
		SourceURL:  a.url,
		ObservedAt: a.now(),
	}, true
}
