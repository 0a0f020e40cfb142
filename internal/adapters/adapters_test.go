package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
)

type stubFetcher struct {
	html     string
	err      error
	requests []fetch.Request
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetch.Request, hooks fetch.Hooks) (fetch.Outcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return fetch.Outcome{}, f.err
	}
	return fetch.Outcome{HTML: f.html, Meta: map[string]any{}}, nil
}

func collect(t *testing.T, a Adapter, fetcher Fetcher) []record.NormalizedRecord {
	t.Helper()
	var records []record.NormalizedRecord
	err := a.Run(context.Background(), fetcher, func(rec record.NormalizedRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("adapter run failed: %v", err)
	}
	return records
}

const squadHTML = `<html><body>
<table class="squad"><tbody>
<tr data-player-id="123">
  <td class="name"><a href="/player/123">Jon Smith</a></td>
  <td class="position">Goalkeeper</td>
  <td class="birthdate">1990-01-01</td>
  <td class="country">England</td>
</tr>
<tr>
  <td class="name"><a href="/player/456">Ana García</a></td>
  <td class="position">Forward</td>
  <td class="birthdate"></td>
  <td class="country">Spain</td>
</tr>
<tr><td class="name"></td></tr>
</tbody></table>
</body></html>`

func TestSquadListAdapter_Run(t *testing.T) {
	fetcher := &stubFetcher{html: squadHTML}
	a := NewSquadListAdapter("clubsite", "https://club.test/squad")

	records := collect(t, a, fetcher)

	if len(records) != 2 {
		t.Fatalf("expected 2 player records, got %d", len(records))
	}

	first := records[0]
	if first.EntityType != record.EntityTypePerson {
		t.Fatalf("expected person record, got %s", first.EntityType)
	}
	if first.Source != "clubsite" || first.ExternalID != "123" {
		t.Fatalf("unexpected identity: source=%s external_id=%s", first.Source, first.ExternalID)
	}
	if first.Name != "Jon Smith" {
		t.Fatalf("unexpected name: %s", first.Name)
	}
	if first.Attributes["birth_date"] != "1990-01-01" || first.Attributes["country"] != "England" {
		t.Fatalf("unexpected attributes: %v", first.Attributes)
	}

	// Second row has no data-player-id; the link slug is the fallback.
	if records[1].ExternalID != "456" {
		t.Fatalf("expected link-derived external id, got %s", records[1].ExternalID)
	}
	if _, ok := records[1].Attributes["birth_date"]; ok {
		t.Fatal("empty attribute cells must be omitted")
	}

	if len(fetcher.requests) != 1 {
		t.Fatalf("expected one fetch, got %d", len(fetcher.requests))
	}
	req := fetcher.requests[0]
	if !req.HandleConsent || req.ScrollRounds != 2 {
		t.Fatalf("unexpected fetch request shape: %+v", req)
	}
}

func TestSquadListAdapter_FetchErrorPropagates(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("fetch attempts exhausted")}
	a := NewSquadListAdapter("clubsite", "https://club.test/squad")

	err := a.Run(context.Background(), fetcher, func(record.NormalizedRecord) error { return nil })
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

const fixturesHTML = `<html><body>
<script type="application/ld+json">
{"@type":"SportsEvent","name":"Rovers vs United","startDate":"2026-09-01T15:00:00Z",
 "url":"https://league.test/match/9001",
 "homeTeam":{"@type":"SportsTeam","name":"Rovers"},
 "awayTeam":{"@type":"SportsTeam","name":"United"}}
</script>
<script type="application/ld+json">{"@type":"Organization","name":"League Ltd"}</script>
<script type="application/ld+json">not json at all</script>
</body></html>`

func TestMatchEventsAdapter_Run(t *testing.T) {
	fetcher := &stubFetcher{html: fixturesHTML}
	a := NewMatchEventsAdapter("leaguesite", "https://league.test/fixtures")

	records := collect(t, a, fetcher)

	if len(records) != 3 {
		t.Fatalf("expected 2 teams + 1 event, got %d records", len(records))
	}

	if records[0].EntityType != record.EntityTypeTeam || records[0].Name != "Rovers" {
		t.Fatalf("expected home team first, got %+v", records[0])
	}
	if records[1].ExternalID != "team:united" {
		t.Fatalf("unexpected team external id: %s", records[1].ExternalID)
	}

	event := records[2]
	if event.EntityType != record.EntityTypeEvent {
		t.Fatalf("expected event record, got %s", event.EntityType)
	}
	if event.ExternalID != "https://league.test/match/9001" {
		t.Fatalf("expected url-derived external id, got %s", event.ExternalID)
	}
	if event.Attributes["home_team"] != "Rovers" || event.Attributes["start_date"] == "" {
		t.Fatalf("unexpected event attributes: %v", event.Attributes)
	}
}

func TestMatchEventsAdapter_EmitErrorStopsRun(t *testing.T) {
	fetcher := &stubFetcher{html: fixturesHTML}
	a := NewMatchEventsAdapter("leaguesite", "https://league.test/fixtures")

	calls := 0
	err := a.Run(context.Background(), fetcher, func(record.NormalizedRecord) error {
		calls++
		return errors.New("sink closed")
	})
	if err == nil {
		t.Fatal("expected emit error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected run to stop after first emit error, got %d calls", calls)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	squad := NewSquadListAdapter("clubsite", "https://club.test/squad")
	matches := NewMatchEventsAdapter("leaguesite", "https://league.test/fixtures")

	if err := reg.Register(squad); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(matches); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(squad); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	if _, ok := reg.Get("clubsite"); !ok {
		t.Fatal("expected clubsite adapter")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("unexpected adapter for unknown name")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "clubsite" || names[1] != "leaguesite" {
		t.Fatalf("unexpected names: %v", names)
	}
}
