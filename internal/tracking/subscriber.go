package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

const (
	subscribeQoS   = 1
	connectTimeout = 10 * time.Second
	recordTimeout  = 5 * time.Second
	disconnectWait = 250
)

// LocationRecorder stores the latest position reported by an ambulance.
// It reports false when the ambulance has no active dispatch.
type LocationRecorder interface {
	RecordLocation(ctx context.Context, ambulanceID, location string) (bool, error)
}

// LocationUpdate is the payload ambulances publish. Location wins over
// the coordinate pair when both are set.
type LocationUpdate struct {
	Location  string   `json:"location"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

func (u LocationUpdate) text() (string, error) {
	if loc := strings.TrimSpace(u.Location); loc != "" {
		return loc, nil
	}
	if u.Latitude == nil || u.Longitude == nil {
		return "", fmt.Errorf("%w: location or lat/lng is required", apperrors.ErrValidation)
	}
	if *u.Latitude < -90 || *u.Latitude > 90 || *u.Longitude < -180 || *u.Longitude > 180 {
		return "", fmt.Errorf("%w: coordinates out of range", apperrors.ErrValidation)
	}
	return fmt.Sprintf("%.6f,%.6f", *u.Latitude, *u.Longitude), nil
}

// Subscriber feeds ambulance position reports from MQTT into active dispatches.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	recorder LocationRecorder
	logger   *zap.Logger
}

func newSubscriber(client mqtt.Client, topic string, recorder LocationRecorder, logger *zap.Logger) *Subscriber {
	return &Subscriber{client: client, topic: topic, recorder: recorder, logger: logger}
}

// NewSubscriber connects to the broker. Call Start to begin consuming.
func NewSubscriber(cfg config.MQTTConfig, recorder LocationRecorder, logger *zap.Logger) (*Subscriber, error) {
	if _, err := idSegment(cfg.Topic); err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	s := newSubscriber(nil, cfg.Topic, recorder, logger)
	// Subscriptions are dropped with a clean session, so resubscribe on every connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.topic, subscribeQoS, s.onMessage); token.Wait() && token.Error() != nil {
			logger.Error("failed to subscribe to ambulance locations", zap.String("topic", s.topic), zap.Error(token.Error()))
			return
		}
		logger.Info("subscribed to ambulance locations", zap.String("topic", s.topic))
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start connects and subscribes; it does not block after the connection is up.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectWait)
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("dropping ambulance location",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
	}
}

// Handle applies one position report. Reports for ambulances without an
// active dispatch are ignored.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	ambulanceID, err := ambulanceFromTopic(s.topic, topic)
	if err != nil {
		return err
	}

	var update LocationUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("%w: invalid location payload: %v", apperrors.ErrValidation, err)
	}
	location, err := update.text()
	if err != nil {
		return err
	}

	applied, err := s.recorder.RecordLocation(ctx, ambulanceID, location)
	if err != nil {
		return fmt.Errorf("failed to record location: %w", err)
	}
	if !applied {
		s.logger.Debug("ambulance has no active dispatch", zap.String("ambulance_id", ambulanceID))
	}
	return nil
}

// idSegment returns the index of the single-level wildcard that carries the ambulance id.
func idSegment(pattern string) (int, error) {
	idx := -1
	for i, part := range strings.Split(pattern, "/") {
		if part == "+" {
			if idx >= 0 {
				return 0, fmt.Errorf("topic %q must contain exactly one '+' wildcard", pattern)
			}
			idx = i
		}
		if part == "#" {
			return 0, fmt.Errorf("topic %q must not use '#'", pattern)
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("topic %q must contain a '+' wildcard for the ambulance id", pattern)
	}
	return idx, nil
}

func ambulanceFromTopic(pattern, topic string) (string, error) {
	idx, err := idSegment(pattern)
	if err != nil {
		return "", err
	}
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", fmt.Errorf("%w: topic %s does not match %s", apperrors.ErrValidation, topic, pattern)
	}
	for i := range want {
		if i != idx && want[i] != got[i] {
			return "", fmt.Errorf("%w: topic %s does not match %s", apperrors.ErrValidation, topic, pattern)
		}
	}
	if !db.IsUUID(got[idx]) {
		return "", fmt.Errorf("%w: ambulance id %q", apperrors.ErrValidation, got[idx])
	}
	return got[idx], nil
}
