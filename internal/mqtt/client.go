package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/models"
)

// ErrNotConnected is returned when a command is published while the broker
// connection is down.
var ErrNotConnected = errors.New("mqtt client is not connected")

// Ingestor receives readings decoded from node messages.
type Ingestor interface {
	Ingest(ctx context.Context, readings []models.SensorReading) error
}

type nodeEntry struct {
	mu       sync.Mutex
	kind     string
	lastSeen time.Time
	lastMsg  string
	messages int64
}

// Client handles the broker connection, node subscriptions and commands,
// and tracks when each node was last heard from.
type Client struct {
	client   paho.Client
	qos      byte
	ingestor Ingestor
	nodes    sync.Map // node id -> *nodeEntry
	changes  transitionLog
	now      func() time.Time
}

// NewClient configures the client. Connect must be called to go online.
func NewClient(cfg *config.Config) *Client {
	c := &Client{
		qos: byte(cfg.MQTT.QoS),
		now: time.Now,
	}
	c.nodes.Store(cfg.Nodes.PlantNodeID, &nodeEntry{kind: "plant"})
	c.nodes.Store(cfg.Nodes.HubNodeID, &nodeEntry{kind: "hub"})

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetWill(TopicServerStatus, `{"status":"offline"}`, c.qos, true)
	opts.SetDefaultPublishHandler(c.messageHandler)
	opts.OnConnect = c.connectHandler
	opts.OnConnectionLost = c.connectionLostHandler

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the broker connection and routes node readings to ingestor.
// If the broker is not reachable yet, the client keeps retrying in the
// background.
func (c *Client) Connect(ingestor Ingestor) {
	c.ingestor = ingestor
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Println("[WARN] MQTT broker not reachable yet, retrying in background")
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("[ERROR] Failed to connect to MQTT broker: %v", err)
	}
}

// connectHandler subscribes on every (re)connect.
func (c *Client) connectHandler(client paho.Client) {
	log.Println("[INFO] Connected to MQTT broker")

	topics := map[string]byte{
		TopicPlantData:      c.qos,
		TopicHubStatus:      c.qos,
		TopicHubImageStatus: c.qos,
	}
	if token := client.SubscribeMultiple(topics, nil); token.Wait() && token.Error() != nil {
		log.Printf("[ERROR] Failed to subscribe to node topics: %v", token.Error())
		return
	}
	log.Printf("[INFO] Subscribed to %d node topics", len(topics))

	client.Publish(TopicServerStatus, c.qos, true, `{"status":"online"}`)
}

func (c *Client) connectionLostHandler(client paho.Client, err error) {
	log.Printf("[WARN] Connection to MQTT broker lost: %v", err)
}

func (c *Client) messageHandler(client paho.Client, msg paho.Message) {
	c.handle(msg.Topic(), msg.Payload())
}

// handle routes one message by topic.
func (c *Client) handle(topic string, payload []byte) {
	received := c.now()

	switch {
	case strings.HasPrefix(topic, "floraSeven/plant/") && strings.HasSuffix(topic, "/data"):
		readings, err := ParsePlantData(topic, payload, received)
		if err != nil {
			log.Printf("[WARN] Dropping plant data from %s: %v", topic, err)
			return
		}
		c.touch(readings[0].NodeID, "plant", "data", received)
		c.ingest(readings)

	case strings.HasPrefix(topic, "floraSeven/hub/") && strings.HasSuffix(topic, "/cam/image_status"):
		status, err := ParseImageStatus(topic, payload)
		if err != nil {
			log.Printf("[WARN] Dropping image status from %s: %v", topic, err)
			return
		}
		c.touch(status.NodeID, "hub", "image_status", received)
		logImageStatus(status)

	case strings.HasPrefix(topic, "floraSeven/hub/") && strings.HasSuffix(topic, "/status"):
		readings, status, err := ParseHubStatus(topic, payload, received)
		if err != nil {
			log.Printf("[WARN] Dropping hub status from %s: %v", topic, err)
			return
		}
		c.touch(status.NodeID, "hub", hubMessageKind(status), received)
		if readings == nil {
			logHubMessage(status)
			return
		}
		c.ingest(readings)

	default:
		log.Printf("[WARN] No handler for topic: %s", topic)
	}
}

func (c *Client) ingest(readings []models.SensorReading) {
	if c.ingestor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ingestor.Ingest(ctx, readings); err != nil {
		log.Printf("[ERROR] Failed to ingest %d readings from %s: %v", len(readings), readings[0].NodeID, err)
	}
}

func hubMessageKind(s *HubStatus) string {
	if s.Status == "" {
		return "status"
	}
	return strings.ToLower(s.Status)
}

func logHubMessage(s *HubStatus) {
	switch s.Status {
	case "ACK":
		log.Printf("[INFO] Hub %s acknowledged command: %s", s.NodeID, s.CommandReceived)
	case "ERROR":
		log.Printf("[ERROR] Hub %s: %s", s.NodeID, s.Message)
	default:
		log.Printf("[INFO] Hub %s: %s", s.NodeID, s.Message)
	}
}

func logImageStatus(s *ImageStatus) {
	switch {
	case s.Status == "uploading":
		log.Printf("[INFO] Camera %s is uploading an image (%d bytes)", s.NodeID, s.ImageSize)
	case s.Status == "uploaded", s.Success != nil && *s.Success:
		log.Printf("[INFO] Camera %s uploaded an image %s", s.NodeID, s.Filename)
	case s.Status == "failed", s.Success != nil && !*s.Success:
		log.Printf("[WARN] Camera %s failed to upload an image: %s", s.NodeID, s.Error)
	default:
		log.Printf("[INFO] Camera %s status: %s", s.NodeID, s.Status)
	}
}

func (c *Client) touch(nodeID, kind, message string, at time.Time) {
	value, _ := c.nodes.LoadOrStore(nodeID, &nodeEntry{kind: kind})
	entry := value.(*nodeEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastSeen = at
	entry.lastMsg = message
	entry.messages++
}

// RestoreLastSeen records activity known from storage, e.g. after a
// restart. It never moves a node's last seen time backwards.
func (c *Client) RestoreLastSeen(nodeID string, at time.Time) {
	value, ok := c.nodes.Load(nodeID)
	if !ok {
		return
	}
	entry := value.(*nodeEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if at.After(entry.lastSeen) {
		entry.lastSeen = at
	}
}

// NodeStatuses returns the liveness of every known node, sorted by id.
func (c *Client) NodeStatuses() []NodeStatus {
	now := c.now()
	var out []NodeStatus
	c.nodes.Range(func(key, value any) bool {
		entry := value.(*nodeEntry)
		entry.mu.Lock()
		status := NodeStatus{
			NodeID:      key.(string),
			Kind:        entry.kind,
			LastMessage: entry.lastMsg,
			State:       StateFor(entry.lastSeen, now),
			Messages:    entry.messages,
		}
		if !entry.lastSeen.IsZero() {
			seen := entry.lastSeen
			status.LastSeen = &seen
		}
		entry.mu.Unlock()
		out = append(out, status)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// CheckTransitions compares every node's state with the last check and
// returns the nodes whose state changed. The first check reports each node's
// initial state. Changes are kept for ConnectionEvents.
func (c *Client) CheckTransitions() []ConnectionEvent {
	changed := c.changes.observe(c.NodeStatuses(), c.now().UTC())
	for _, ev := range changed {
		log.Printf("[INFO] Node %s connection state %s -> %s", ev.NodeID, stateOrUnknown(ev.From), ev.To)
	}
	return changed
}

// ConnectionEvents returns recent state transitions, newest first.
func (c *Client) ConnectionEvents(limit int) []ConnectionEvent {
	return c.changes.recent(limit)
}

func stateOrUnknown(s ConnectionState) ConnectionState {
	if s == "" {
		return "unknown"
	}
	return s
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

func (c *Client) publish(topic string, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding payload for %s: %w", topic, err)
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("error publishing to topic %s: %w", topic, token.Error())
	}

	log.Printf("[INFO] Published '%s' to topic '%s'", payload, topic)
	return nil
}

func (c *Client) stamp(prefix string) (string, string) {
	now := c.now()
	return now.Format(time.RFC3339), fmt.Sprintf("%s_%d", prefix, now.Unix())
}

// PublishPump switches the hub pump. duration is only sent for "ON".
func (c *Client) PublishPump(state string, durationSec int) error {
	ts, id := c.stamp("pump")
	cmd := PumpCommand{State: state, Timestamp: ts, MessageID: id}
	if state == "ON" {
		cmd.DurationSec = durationSec
	}
	return c.publish(TopicCommandPump, cmd)
}

// PublishCaptureImage asks the hub camera to take and upload a photo.
func (c *Client) PublishCaptureImage() error {
	ts, id := c.stamp("capture")
	return c.publish(TopicCommandCapture, CaptureCommand{Timestamp: ts, MessageID: id})
}

// PublishReadNow asks a plant node to report immediately.
func (c *Client) PublishReadNow(nodeID string) error {
	ts, id := c.stamp("read")
	return c.publish(fmt.Sprintf(TopicCommandReadNow, nodeID), ReadNowCommand{Timestamp: ts, MessageID: id})
}

// Close publishes an offline status and disconnects.
func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Publish(TopicServerStatus, c.qos, true, `{"status":"offline"}`).WaitTimeout(time.Second)
		c.client.Disconnect(250)
	}
}
