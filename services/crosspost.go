package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"tg-tires-server/models"

	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const PublishPostTaskType = "social:publish"

type publishPostPayload struct {
	PostID    uint `json:"postID"`
	AccountID uint `json:"accountID"`
}

// PlatformPublisher pushes one post to one connected social account. Thin
// wrapper over the platform bridge; all API complexity lives on the far side.
type PlatformPublisher interface {
	Publish(ctx context.Context, account models.SocialAccount, post models.SocialPost, listing models.TireListing) error
}

// BridgePublisher posts to the social bridge service, which holds the
// platform-specific API logic. One bridge endpoint per platform.
type BridgePublisher struct {
	baseURL string
	client  *http.Client
}

func NewBridgePublisher() *BridgePublisher {
	return &BridgePublisher{
		baseURL: os.Getenv("SOCIAL_BRIDGE_URL"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *BridgePublisher) Publish(ctx context.Context, account models.SocialAccount, post models.SocialPost, listing models.TireListing) error {
	body, err := json.Marshal(map[string]any{
		"handle":      account.Handle,
		"accessToken": account.AccessToken,
		"body":        post.Body,
		"title":       listing.Title,
		"priceCents":  listing.PriceCents,
		"currency":    listing.Currency,
		"images":      listing.Images,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/posts", p.baseURL, account.Platform)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %d for %s", res.StatusCode, account.Platform)
	}
	return nil
}

// CrossPostService fans a post out to every connected account, one queue task
// per platform, and records per-platform outcomes on the post row.
type CrossPostService struct {
	db        *gorm.DB
	queue     *asynq.Client
	publisher PlatformPublisher
}

func NewCrossPostService(db *gorm.DB, queue *asynq.Client, publisher PlatformPublisher) *CrossPostService {
	return &CrossPostService{db: db, queue: queue, publisher: publisher}
}

// Enqueue queues one publish task per account. The post stays "queued" until
// workers have written a result for every platform.
func (s *CrossPostService) Enqueue(post *models.SocialPost, accounts []models.SocialAccount) error {
	for _, account := range accounts {
		payload, _ := json.Marshal(publishPostPayload{PostID: post.ID, AccountID: account.ID})
		task := asynq.NewTask(PublishPostTaskType, payload)
		if _, err := s.queue.Enqueue(task, asynq.Queue("outbound"), asynq.MaxRetry(3)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPublishTask binds the publish worker to the queue mux.
func (s *CrossPostService) RegisterPublishTask(mux *asynq.ServeMux) {
	mux.HandleFunc(PublishPostTaskType, func(ctx context.Context, t *asynq.Task) error {
		var p publishPostPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}

		var post models.SocialPost
		if err := s.db.First(&post, p.PostID).Error; err != nil {
			return err
		}
		var account models.SocialAccount
		if err := s.db.First(&account, p.AccountID).Error; err != nil {
			return err
		}
		var listing *models.TireListing
		if post.ListingID != 0 {
			var l models.TireListing
			if err := s.db.First(&l, post.ListingID).Error; err != nil {
				log.Printf("cross-post %d: listing %d unavailable: %v", post.ID, post.ListingID, err)
			} else {
				listing = &l
			}
		}

		outcome := s.publishOutcome(ctx, account, post, listing)
		if err := s.recordResult(p.PostID, account.Platform, outcome); err != nil {
			return err
		}
		// Returning the publish error would retry with the same token; the
		// recorded outcome already tells the seller what happened.
		return nil
	})
}

// publishOutcome pushes the post to one account and returns the outcome text
// stored in the result map. A post whose listing is gone is recorded as a
// failure instead of publishing zero-valued title and price.
func (s *CrossPostService) publishOutcome(ctx context.Context, account models.SocialAccount, post models.SocialPost, listing *models.TireListing) string {
	if post.ListingID != 0 && listing == nil {
		return "listing unavailable"
	}
	var l models.TireListing
	if listing != nil {
		l = *listing
	}
	if err := s.publisher.Publish(ctx, account, post, l); err != nil {
		log.Printf("cross-post %d to %s failed: %v", post.ID, account.Platform, err)
		return err.Error()
	}
	return "published"
}

// aggregateStatus folds the per-platform result map into one post status.
// The post stays "queued" until every expected platform has reported.
func aggregateStatus(results map[string]string, expected int) string {
	if len(results) < expected {
		return models.SocialPostQueued
	}
	published, failed := 0, 0
	for _, r := range results {
		if r == "published" {
			published++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return models.SocialPostPublished
	case published == 0:
		return models.SocialPostFailed
	default:
		return models.SocialPostPartial
	}
}

// recordResult merges one platform outcome into the post's result map and
// recomputes the aggregate status inside a transaction, since workers for the
// same post run concurrently.
func (s *CrossPostService) recordResult(postID uint, platform, outcome string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var post models.SocialPost
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error; err != nil {
			return err
		}

		results := map[string]string{}
		if post.Results != nil {
			_ = json.Unmarshal(post.Results, &results)
		}
		results[platform] = outcome

		raw, _ := json.Marshal(results)
		return tx.Model(&post).Updates(map[string]any{
			"results": datatypes.JSON(raw),
			"status":  aggregateStatus(results, post.PlatformCount),
		}).Error
	})
}
