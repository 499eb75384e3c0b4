package harmony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	// hubOrigin is required by the hub's websocket endpoint.
	hubOrigin = "http://sl.dhg.myharmony.com"
	// hubDomain identifies the hub service domain in the websocket URL.
	hubDomain = "svcs.myharmony.com"

	cmdConfig          = "vnd.logitech.harmony/vnd.logitech.harmony.engine?config"
	cmdCurrentActivity = "vnd.logitech.harmony/vnd.logitech.harmony.engine?getCurrentActivity"
	cmdRunActivity     = "harmony.activityengine?runactivity"
)

// Config holds websocket client settings.
type Config struct {
	Host            string
	Port            int
	Timeout         time.Duration
	CatalogCacheTTL time.Duration
}

// WebsocketClient implements Client against a real hub. Each operation dials
// a fresh session and tears it down afterwards, matching how the hub expects
// short-lived clients to behave.
type WebsocketClient struct {
	cfg    Config
	logger zerolog.Logger

	// The hub's active remote id is required in the websocket URL. It is
	// fetched over plain HTTP and cached once known; a failed fetch is
	// retried on the next operation.
	remoteMu sync.Mutex
	remoteID string

	// The activity catalog only changes when the hub is re-programmed, and
	// the config payload it rides in is large. Cache it per host.
	catalog *expirable.LRU[string, []Activity]

	msgID atomic.Int64
}

// NewWebsocketClient creates a hub client. No connection is made until the
// first operation.
func NewWebsocketClient(cfg Config, logger zerolog.Logger) *WebsocketClient {
	if cfg.Port == 0 {
		cfg.Port = 8088
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	ttl := cfg.CatalogCacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &WebsocketClient{
		cfg:     cfg,
		logger:  logger.With().Str("component", "harmony").Str("hub", cfg.Host).Logger(),
		catalog: expirable.NewLRU[string, []Activity](8, nil, ttl),
	}
}

// hubMessage is the request envelope the hub's hbus expects.
type hubMessage struct {
	HubID   string     `json:"hubId"`
	Timeout int        `json:"timeout"`
	Hbus    hubCommand `json:"hbus"`
}

type hubCommand struct {
	Cmd    string         `json:"cmd"`
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
}

type hubResponse struct {
	ID   string          `json:"id"`
	Code any             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// Activities returns the hub's defined activities, served from the catalog
// cache when fresh.
func (c *WebsocketClient) Activities(ctx context.Context) ([]Activity, error) {
	if cached, ok := c.catalog.Get(c.cfg.Host); ok {
		c.logger.Debug().Int("activities", len(cached)).Msg("Activity catalog served from cache")
		return cached, nil
	}

	data, err := c.request(ctx, cmdConfig, map[string]any{"verb": "get"})
	if err != nil {
		return nil, fmt.Errorf("query hub config: %w", err)
	}

	var cfg struct {
		Activity []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode hub config: %w", err)
	}

	activities := make([]Activity, 0, len(cfg.Activity))
	for _, a := range cfg.Activity {
		activities = append(activities, Activity{ID: a.ID, Label: a.Label})
	}

	c.catalog.Add(c.cfg.Host, activities)
	c.logger.Debug().Int("activities", len(activities)).Msg("Activity catalog loaded from hub")
	return activities, nil
}

// CurrentActivityID returns the id of the currently running activity.
func (c *WebsocketClient) CurrentActivityID(ctx context.Context) (string, error) {
	data, err := c.request(ctx, cmdCurrentActivity, map[string]any{"verb": "get"})
	if err != nil {
		return "", fmt.Errorf("query current activity: %w", err)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode current activity: %w", err)
	}
	if result.Result == "" {
		return "", fmt.Errorf("hub returned empty current activity")
	}

	c.logger.Debug().Str("activity_id", result.Result).Msg("Current activity sampled")
	return result.Result, nil
}

// TurnOff starts the power-off activity, shutting the whole system down.
func (c *WebsocketClient) TurnOff(ctx context.Context) error {
	_, err := c.request(ctx, cmdRunActivity, map[string]any{
		"async":      "true",
		"timestamp":  0,
		"activityId": OffID,
		"args":       map[string]any{"rule": "start"},
	})
	if err != nil {
		return fmt.Errorf("run power-off activity: %w", err)
	}
	c.logger.Info().Msg("Hub power-off issued")
	return nil
}

// Close releases cached session state. Websocket sessions are per-operation,
// so there is no long-lived connection to tear down.
func (c *WebsocketClient) Close() error {
	c.catalog.Purge()
	return nil
}

// request dials a session, sends one hbus command, and waits for the
// matching response. The hub interleaves unsolicited state digests on the
// same socket, so replies are matched by message id.
func (c *WebsocketClient) request(ctx context.Context, cmd string, params map[string]any) (json.RawMessage, error) {
	remoteID, err := c.activeRemoteID(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("ws://%s:%d/?domain=%s&hubId=%s", c.cfg.Host, c.cfg.Port, hubDomain, remoteID)
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, url, http.Header{"Origin": []string{hubOrigin}})
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", c.cfg.Host, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	msgID := strconv.FormatInt(c.msgID.Add(1), 10)
	msg := hubMessage{
		HubID:   remoteID,
		Timeout: int(c.cfg.Timeout.Seconds()),
		Hbus:    hubCommand{Cmd: cmd, ID: msgID, Params: params},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	for {
		var resp hubResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("read response to %s: %w", cmd, err)
		}
		if resp.ID != msgID {
			// Unsolicited digest, keep reading.
			continue
		}
		if code := fmt.Sprint(resp.Code); code != "200" && code != "100" {
			return nil, fmt.Errorf("hub rejected %s: code %s", cmd, code)
		}
		return resp.Data, nil
	}
}

// activeRemoteID fetches the hub's remote id over plain HTTP. The hub only
// accepts websocket sessions addressed to this id.
func (c *WebsocketClient) activeRemoteID(ctx context.Context) (string, error) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()

	if c.remoteID != "" {
		return c.remoteID, nil
	}
	id, err := c.fetchRemoteID(ctx)
	if err != nil {
		return "", err
	}
	c.remoteID = id
	return id, nil
}

func (c *WebsocketClient) fetchRemoteID(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]any{
		"id":     1,
		"cmd":    "setup.account?getProvisionInfo",
		"params": map[string]any{},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://%s:%d/", c.cfg.Host, c.cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", hubOrigin)
	req.Header.Set("Accept-Charset", "utf-8")

	client := &http.Client{Timeout: c.cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provision request to hub %s: %w", c.cfg.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provision request to hub %s: status %d", c.cfg.Host, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var provision struct {
		Data struct {
			ActiveRemoteID json.Number `json:"activeRemoteId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &provision); err != nil {
		return "", fmt.Errorf("decode provision info: %w", err)
	}
	if provision.Data.ActiveRemoteID.String() == "" {
		return "", fmt.Errorf("hub %s returned no active remote id", c.cfg.Host)
	}

	c.logger.Debug().Str("remote_id", provision.Data.ActiveRemoteID.String()).Msg("Hub remote id resolved")
	return provision.Data.ActiveRemoteID.String(), nil
}
