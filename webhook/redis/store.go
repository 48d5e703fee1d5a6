package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Store
 * Uses Redis Hashes for webhook configuration and delivery records,
 * with SCAN + pipelining for filtered queries
 */

const (
	webhookPrefix  = "webhook"  // Hash naming: webhook:{webhook_id}
	deliveryPrefix = "delivery" // Hash naming: delivery:{delivery_id}
)

type Store struct {
	client *redis.Client
}

// NewStore creates a Redis store and verifies the connection
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// CreateWebhook stores a webhook configuration hash
func (s *Store) CreateWebhook(ctx context.Context, wh webhook.Webhook) (string, error) {
	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}
	now := time.Now()
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	wh.UpdatedAt = now

	var lastTriggered int64
	if wh.LastTriggeredAt != nil {
		lastTriggered = wh.LastTriggeredAt.UnixMilli()
	}

	key := fmt.Sprintf("%s:%s", webhookPrefix, wh.ID)
	err := s.client.HSet(ctx, key, map[string]interface{}{
		"id":                wh.ID,
		"tenant_id":         wh.TenantID,
		"url":               wh.URL,
		"secret":            wh.Secret,
		"active":            boolToInt(wh.Active),
		"max_retries":       wh.MaxRetries,
		"retry_interval_ms": wh.RetryInterval.Milliseconds(),
		"timeout_ms":        wh.Timeout.Milliseconds(),
		"last_triggered_at": lastTriggered,
		"created_at":        wh.CreatedAt.UnixMilli(),
		"updated_at":        wh.UpdatedAt.UnixMilli(),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("storing webhook: %w", err)
	}

	return wh.ID, nil
}

// FindWebhook retrieves a webhook by ID from its hash
func (s *Store) FindWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	key := fmt.Sprintf("%s:%s", webhookPrefix, id)

	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, fmt.Errorf("finding webhook %s: %w", id, webhook.ErrWebhookNotFound)
	}

	wh := webhook.Webhook{
		ID:            data["id"],
		TenantID:      data["tenant_id"],
		URL:           data["url"],
		Secret:        data["secret"],
		Active:        data["active"] == "1",
		MaxRetries:    int(parseInt64(data["max_retries"])),
		RetryInterval: time.Duration(parseInt64(data["retry_interval_ms"])) * time.Millisecond,
		Timeout:       time.Duration(parseInt64(data["timeout_ms"])) * time.Millisecond,
		CreatedAt:     time.UnixMilli(parseInt64(data["created_at"])),
		UpdatedAt:     time.UnixMilli(parseInt64(data["updated_at"])),
	}
	if ms := parseInt64(data["last_triggered_at"]); ms > 0 {
		t := time.UnixMilli(ms)
		wh.LastTriggeredAt = &t
	}

	return wh, nil
}

// UpdateWebhook applies the non-nil fields to a webhook hash
func (s *Store) UpdateWebhook(ctx context.Context, id string, fields webhook.WebhookUpdate) error {
	key := fmt.Sprintf("%s:%s", webhookPrefix, id)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("checking webhook: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("updating webhook %s: %w", id, webhook.ErrWebhookNotFound)
	}

	values := map[string]interface{}{
		"updated_at": time.Now().UnixMilli(),
	}
	if fields.Active != nil {
		values["active"] = boolToInt(*fields.Active)
	}
	if fields.LastTriggeredAt != nil {
		values["last_triggered_at"] = fields.LastTriggeredAt.UnixMilli()
	}

	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("updating webhook: %w", err)
	}

	return nil
}

// CreateDelivery stores a delivery attempt record hash
func (s *Store) CreateDelivery(ctx context.Context, d webhook.Delivery) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	headersJSON, err := json.Marshal(d.Headers)
	if err != nil {
		return "", fmt.Errorf("marshaling headers: %w", err)
	}

	key := fmt.Sprintf("%s:%s", deliveryPrefix, d.ID)
	err = s.client.HSet(ctx, key, map[string]interface{}{
		"id":            d.ID,
		"webhook_id":    d.WebhookID,
		"event":         d.Event,
		"payload":       string(d.Payload),
		"headers":       string(headersJSON),
		"attempt":       d.Attempt,
		"status":        d.Status.String(),
		"http_status":   intPtrToString(d.HTTPStatus),
		"response":      d.Response,
		"error":         strPtrToString(d.Error),
		"created_at":    d.CreatedAt.UnixMilli(),
		"delivered_at":  timePtrToMilli(d.DeliveredAt),
		"completed_at":  timePtrToMilli(d.CompletedAt),
		"next_retry_at": timePtrToMilli(d.NextRetryAt),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("storing delivery: %w", err)
	}

	return d.ID, nil
}

// UpdateDelivery applies the non-nil fields to a delivery hash
func (s *Store) UpdateDelivery(ctx context.Context, id string, fields webhook.DeliveryUpdate) error {
	key := fmt.Sprintf("%s:%s", deliveryPrefix, id)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("checking delivery: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("updating delivery %s: not found", id)
	}

	values := make(map[string]interface{})
	if fields.Status != nil {
		values["status"] = fields.Status.String()
	}
	if fields.HTTPStatus != nil {
		values["http_status"] = strconv.Itoa(*fields.HTTPStatus)
	}
	if fields.Response != nil {
		values["response"] = *fields.Response
	}
	if fields.Error != nil {
		values["error"] = *fields.Error
	}
	if fields.DeliveredAt != nil {
		values["delivered_at"] = fields.DeliveredAt.UnixMilli()
	}
	if fields.CompletedAt != nil {
		values["completed_at"] = fields.CompletedAt.UnixMilli()
	}
	if fields.NextRetryAt != nil {
		values["next_retry_at"] = fields.NextRetryAt.UnixMilli()
	}
	if len(values) == 0 {
		return nil
	}

	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("updating delivery: %w", err)
	}

	return nil
}

// QueryDeliveries scans delivery hashes and returns matches, newest first
func (s *Store) QueryDeliveries(ctx context.Context, filter webhook.Filter) ([]webhook.Delivery, error) {
	keys, err := s.scanDeliveryKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	// Pipeline for efficient batch reads
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("executing pipeline: %w", err)
	}

	var out []webhook.Delivery
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		d, err := deliveryFromHash(data)
		if err != nil {
			continue
		}
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

// DeleteDeliveries removes matching delivery hashes and returns the count
func (s *Store) DeleteDeliveries(ctx context.Context, filter webhook.Filter) (int, error) {
	filter.Limit = 0
	matches, err := s.QueryDeliveries(ctx, filter)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, d := range matches {
		pipe.Del(ctx, fmt.Sprintf("%s:%s", deliveryPrefix, d.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("deleting deliveries: %w", err)
	}

	return len(matches), nil
}

// Close closes the Redis connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

// Helper functions

func (s *Store) scanDeliveryKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		scanKeys, nextCursor, err := s.client.Scan(ctx, cursor, deliveryPrefix+":*", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning delivery keys: %w", err)
		}
		keys = append(keys, scanKeys...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func deliveryFromHash(data map[string]string) (webhook.Delivery, error) {
	headers := make(map[string]string)
	if raw, ok := data["headers"]; ok && raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	d := webhook.Delivery{
		ID:        data["id"],
		WebhookID: data["webhook_id"],
		Event:     data["event"],
		Payload:   []byte(data["payload"]),
		Headers:   headers,
		Attempt:   int(parseInt64(data["attempt"])),
		Status:    webhook.NewStatus(data["status"]),
		Response:  data["response"],
		CreatedAt: time.UnixMilli(parseInt64(data["created_at"])),
	}
	if v := data["http_status"]; v != "" {
		code := int(parseInt64(v))
		d.HTTPStatus = &code
	}
	if v := data["error"]; v != "" {
		d.Error = &v
	}
	if ms := parseInt64(data["delivered_at"]); ms > 0 {
		t := time.UnixMilli(ms)
		d.DeliveredAt = &t
	}
	if ms := parseInt64(data["completed_at"]); ms > 0 {
		t := time.UnixMilli(ms)
		d.CompletedAt = &t
	}
	if ms := parseInt64(data["next_retry_at"]); ms > 0 {
		t := time.UnixMilli(ms)
		d.NextRetryAt = &t
	}

	return d, nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intPtrToString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strPtrToString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timePtrToMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
