package services

import (
	"context"
	"errors"
	"testing"

	"tg-tires-server/models"
)

type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Publish(ctx context.Context, account models.SocialAccount, post models.SocialPost, listing models.TireListing) error {
	p.calls++
	return p.err
}

func TestAggregateStatusWaitsForAllPlatforms(t *testing.T) {
	tests := []struct {
		name     string
		results  map[string]string
		expected int
		want     string
	}{
		{
			name:     "first success of three stays queued",
			results:  map[string]string{"facebook": "published"},
			expected: 3,
			want:     models.SocialPostQueued,
		},
		{
			name:     "first failure of three stays queued",
			results:  map[string]string{"facebook": "bridge returned 500 for facebook"},
			expected: 3,
			want:     models.SocialPostQueued,
		},
		{
			name: "two of three stays queued",
			results: map[string]string{
				"facebook":  "published",
				"instagram": "published",
			},
			expected: 3,
			want:     models.SocialPostQueued,
		},
		{
			name: "all published",
			results: map[string]string{
				"facebook":  "published",
				"instagram": "published",
				"x":         "published",
			},
			expected: 3,
			want:     models.SocialPostPublished,
		},
		{
			name: "mixed outcomes",
			results: map[string]string{
				"facebook":  "published",
				"instagram": "bridge returned 500 for instagram",
				"x":         "published",
			},
			expected: 3,
			want:     models.SocialPostPartial,
		},
		{
			name: "all failed",
			results: map[string]string{
				"facebook":  "bridge returned 500 for facebook",
				"instagram": "bridge returned 500 for instagram",
			},
			expected: 2,
			want:     models.SocialPostFailed,
		},
		{
			name:     "single platform success",
			results:  map[string]string{"marketplace": "published"},
			expected: 1,
			want:     models.SocialPostPublished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregateStatus(tt.results, tt.expected); got != tt.want {
				t.Fatalf("aggregateStatus(%v, %d) = %q, want %q", tt.results, tt.expected, got, tt.want)
			}
		})
	}
}

func TestPublishOutcomeMissingListing(t *testing.T) {
	publisher := &fakePublisher{}
	s := NewCrossPostService(nil, nil, publisher)

	post := models.SocialPost{ID: 1, ListingID: 42}
	account := models.SocialAccount{ID: 7, Platform: "facebook"}

	outcome := s.publishOutcome(context.Background(), account, post, nil)
	if outcome != "listing unavailable" {
		t.Fatalf("outcome = %q, want %q", outcome, "listing unavailable")
	}
	if publisher.calls != 0 {
		t.Fatalf("publisher called %d times for a missing listing, want 0", publisher.calls)
	}
}

func TestPublishOutcomeSuccessAndFailure(t *testing.T) {
	post := models.SocialPost{ID: 1, ListingID: 42}
	account := models.SocialAccount{ID: 7, Platform: "facebook"}
	listing := &models.TireListing{ID: 42, Title: "Four all-seasons", PriceCents: 24000}

	publisher := &fakePublisher{}
	s := NewCrossPostService(nil, nil, publisher)
	if got := s.publishOutcome(context.Background(), account, post, listing); got != "published" {
		t.Fatalf("outcome = %q, want %q", got, "published")
	}
	if publisher.calls != 1 {
		t.Fatalf("publisher called %d times, want 1", publisher.calls)
	}

	publisher = &fakePublisher{err: errors.New("bridge returned 503 for facebook")}
	s = NewCrossPostService(nil, nil, publisher)
	if got := s.publishOutcome(context.Background(), account, post, listing); got != "bridge returned 503 for facebook" {
		t.Fatalf("outcome = %q, want the publisher error text", got)
	}
}
