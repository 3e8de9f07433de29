package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sandai/pkbattle/src/domain/activity"
)

// SegmentDispatcher implements activity.Dispatcher for a Segment-style
// batch endpoint.
type SegmentDispatcher struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewSegmentDispatcher(apiKey, baseURL string) *SegmentDispatcher {
	if baseURL == "" {
		baseURL = "https://api.segment.io/v1/batch"
	}
	return &SegmentDispatcher{
		APIKey:  apiKey,
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client.
func (d *SegmentDispatcher) WithHTTPClient(client *http.Client) *SegmentDispatcher {
	d.HTTPClient = client
	return d
}

type segmentEvent struct {
	Type        string         `json:"type"`
	UserID      string         `json:"userId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties"`
	Timestamp   time.Time      `json:"timestamp"`
}

type segmentBatch struct {
	Batch []segmentEvent `json:"batch"`
}

// Dispatch sends events as one batch of track calls. Timer-driven events
// have no actor and are attributed to the battle.
func (d *SegmentDispatcher) Dispatch(ctx context.Context, events []*activity.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := segmentBatch{Batch: make([]segmentEvent, 0, len(events))}
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return err
		}
		properties := make(map[string]any, len(event.Properties)+2)
		for k, v := range event.Properties {
			properties[k] = v
		}
		properties["battle_id"] = string(event.BattleID)
		if event.RoomID != "" {
			properties["room_id"] = string(event.RoomID)
		}
		se := segmentEvent{
			Type:       "track",
			UserID:     string(event.UserID),
			Event:      string(event.Name),
			Properties: properties,
			Timestamp:  event.Timestamp,
		}
		if se.UserID == "" {
			se.AnonymousID = "battle:" + string(event.BattleID)
		}
		batch.Batch = append(batch.Batch, se)
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.APIKey, "")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", activity.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", activity.ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}
