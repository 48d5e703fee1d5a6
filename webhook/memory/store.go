package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
)

/* In-memory implementation of webhook.Store
 * Backs tests and single-process deployments; everything is lost on restart
 */

type Store struct {
	mu         sync.RWMutex
	webhooks   map[string]webhook.Webhook
	deliveries map[string]webhook.Delivery
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		webhooks:   make(map[string]webhook.Webhook),
		deliveries: make(map[string]webhook.Delivery),
	}
}

// CreateWebhook stores a webhook configuration, generating an id when absent
func (s *Store) CreateWebhook(ctx context.Context, wh webhook.Webhook) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}
	now := time.Now()
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	wh.UpdatedAt = now
	s.webhooks[wh.ID] = wh

	return wh.ID, nil
}

// FindWebhook returns a webhook by id or webhook.ErrWebhookNotFound
func (s *Store) FindWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return webhook.Webhook{}, fmt.Errorf("finding webhook %s: %w", id, webhook.ErrWebhookNotFound)
	}
	return wh, nil
}

// UpdateWebhook applies the non-nil fields to a webhook
func (s *Store) UpdateWebhook(ctx context.Context, id string, fields webhook.WebhookUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return fmt.Errorf("updating webhook %s: %w", id, webhook.ErrWebhookNotFound)
	}
	if fields.Active != nil {
		wh.Active = *fields.Active
	}
	if fields.LastTriggeredAt != nil {
		t := *fields.LastTriggeredAt
		wh.LastTriggeredAt = &t
	}
	wh.UpdatedAt = time.Now()
	s.webhooks[id] = wh

	return nil
}

// CreateDelivery stores a new attempt record, generating an id when absent
func (s *Store) CreateDelivery(ctx context.Context, d webhook.Delivery) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.deliveries[d.ID] = d

	return d.ID, nil
}

// UpdateDelivery applies the non-nil fields to a delivery record
func (s *Store) UpdateDelivery(ctx context.Context, id string, fields webhook.DeliveryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return fmt.Errorf("updating delivery %s: not found", id)
	}
	if fields.Status != nil {
		d.Status = *fields.Status
	}
	if fields.HTTPStatus != nil {
		v := *fields.HTTPStatus
		d.HTTPStatus = &v
	}
	if fields.Response != nil {
		d.Response = *fields.Response
	}
	if fields.Error != nil {
		v := *fields.Error
		d.Error = &v
	}
	if fields.DeliveredAt != nil {
		t := *fields.DeliveredAt
		d.DeliveredAt = &t
	}
	if fields.CompletedAt != nil {
		t := *fields.CompletedAt
		d.CompletedAt = &t
	}
	if fields.NextRetryAt != nil {
		t := *fields.NextRetryAt
		d.NextRetryAt = &t
	}
	s.deliveries[id] = d

	return nil
}

// QueryDeliveries returns deliveries matching the filter, newest first
func (s *Store) QueryDeliveries(ctx context.Context, filter webhook.Filter) ([]webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []webhook.Delivery
	for _, d := range s.deliveries {
		if filter.Matches(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

// DeleteDeliveries removes deliveries matching the filter and returns the count
func (s *Store) DeleteDeliveries(ctx context.Context, filter webhook.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, d := range s.deliveries {
		if filter.Matches(d) {
			delete(s.deliveries, id)
			count++
		}
	}

	return count, nil
}

// Close implements webhook.Store
func (s *Store) Close(ctx context.Context) error {
	return nil
}
