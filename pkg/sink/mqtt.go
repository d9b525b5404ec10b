package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/pkg/protocol"
)

// MQTTPublisher forwards decoded readings to an MQTT broker as JSON.
// Publishing is fire-and-forget at QoS 0: a slow or absent broker must
// never back-pressure the acquisition loop.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *logrus.Logger
}

// readingPayload is the published JSON shape.
type readingPayload struct {
	Timestamp  string  `json:"timestamp,omitempty"`
	FixStatus  string  `json:"fix_status"`
	Satellites int     `json:"satellites"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude_msl_m"`
	Speed      float64 `json:"speed_kmh"`
	Heading    float64 `json:"heading_deg"`
	GForceX    float64 `json:"gforce_x"`
	GForceY    float64 `json:"gforce_y"`
	GForceZ    float64 `json:"gforce_z"`
	RotationX  float64 `json:"rotation_x"`
	RotationY  float64 `json:"rotation_y"`
	RotationZ  float64 `json:"rotation_z"`
	Battery    int     `json:"battery_pct"`
}

// NewMQTTPublisher connects to the configured broker. The initial
// connect is bounded by ctx; afterwards the paho client reconnects on
// its own.
func NewMQTTPublisher(ctx context.Context, cfg config.MQTTConfig, logger *logrus.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "racebox-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", cfg.BrokerURL).Info("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			client.Disconnect(0)
			return nil, ctx.Err()
		default:
		}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// Publish sends one reading. Errors are logged, not returned: readings
// are ephemeral and the next one supersedes a lost publish.
func (p *MQTTPublisher) Publish(r protocol.Reading) {
	payload := readingPayload{
		FixStatus:  r.FixStatus.String(),
		Satellites: r.Satellites,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Altitude:   r.AltitudeMSL,
		Speed:      r.Speed,
		Heading:    r.Heading,
		GForceX:    r.GForceX,
		GForceY:    r.GForceY,
		GForceZ:    r.GForceZ,
		RotationX:  r.RotationX,
		RotationY:  r.RotationY,
		RotationZ:  r.RotationZ,
		Battery:    r.BatteryLevel,
	}
	if !r.Timestamp.IsZero() {
		payload.Timestamp = r.Timestamp.Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to marshal reading")
		return
	}

	p.client.Publish(p.topic, 0, false, data)
}

// Close disconnects from the broker, allowing a short drain for
// in-flight messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
