package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railtracker-live/internal/archive"
	"github.com/railtracker-live/internal/common/alert"
	"github.com/railtracker-live/internal/common/config"
	"github.com/railtracker-live/internal/common/download"
	"github.com/railtracker-live/internal/common/logger"
	"github.com/railtracker-live/internal/metrics"
	"github.com/railtracker-live/internal/network"
	"github.com/railtracker-live/internal/stomp"
	"github.com/railtracker-live/internal/transport"
)

// passengerEventMessage is the body of each inbound MESSAGE frame.
type passengerEventMessage struct {
	PassengerEvent string `json:"passenger_event"`
	StationID      string `json:"station_id"`
}

// Monitor owns the network graph and the feed session: it hydrates the
// graph from the layout document, subscribes to the passenger-event feed
// and applies each event to the graph. Route queries delegate to the
// planner over the live graph.
type Monitor struct {
	cfg       config.MonitorConfig
	logger    logger.Logger
	network   *network.Network
	carrier   transport.Carrier
	client    *stomp.Client
	archive   *archive.Archive
	alerts    *alert.Client
	sessionID string

	mu         sync.Mutex
	configured bool

	// fatal carries the first session-terminating error to Run. Buffered
	// so session callbacks never block on it.
	fatal chan error
}

func New(cfg config.MonitorConfig, log logger.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		logger:    log,
		network:   network.New(),
		sessionID: uuid.NewString(),
		fatal:     make(chan error, 4),
	}
}

// AttachArchive enables the postgres event archive.
func (m *Monitor) AttachArchive(a *archive.Archive) {
	m.archive = a
}

// AttachAlerts enables webhook alerting on fatal session errors.
func (m *Monitor) AttachAlerts(c *alert.Client) {
	m.alerts = c
}

// Configure hydrates the graph from the layout document and prepares the
// feed session. Layout paths starting with http:// or https:// are
// downloaded first, verified against the configured trust store.
func (m *Monitor) Configure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configured {
		return fmt.Errorf("monitor already configured")
	}

	layoutPath := m.cfg.NetworkLayoutPath
	if strings.HasPrefix(layoutPath, "http://") || strings.HasPrefix(layoutPath, "https://") {
		downloader, err := download.New(m.cfg.CertPath, m.logger)
		if err != nil {
			return fmt.Errorf("configuring layout download: %w", err)
		}
		dest := filepath.Join(os.TempDir(), "railtracker-network-layout.json")
		if err := downloader.Download(ctx, layoutPath, dest); err != nil {
			return fmt.Errorf("downloading network layout: %w", err)
		}
		layoutPath = dest
	}

	layout, err := network.LoadLayout(layoutPath)
	if err != nil {
		return err
	}
	if err := m.network.Hydrate(layout); err != nil {
		return err
	}
	m.logger.Info("Network hydrated",
		"session_id", m.sessionID,
		"stations", len(layout.Stations),
		"lines", len(layout.Lines),
	)

	if m.carrier == nil {
		m.carrier = transport.NewWebSocketCarrier(
			m.cfg.URL, m.cfg.Endpoint, m.cfg.Port, m.cfg.CertPath, m.logger)
	}
	m.client = stomp.NewClient(m.carrier, m.cfg.URL, m.cfg.StompEndpoint, m.logger)
	m.configured = true
	return nil
}

// Run connects the session, subscribes to the feed and blocks until the
// context is cancelled, the configured runtime elapses, or the session
// fails. The session is closed on every exit path.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		return fmt.Errorf("monitor is not configured")
	}
	client := m.client
	m.mu.Unlock()

	client.Connect(m.cfg.Username, m.cfg.Password, m.onConnect, m.onDisconnect)

	var expired <-chan time.Time
	if m.cfg.Runtime > 0 {
		timer := time.NewTimer(m.cfg.Runtime)
		defer timer.Stop()
		expired = timer.C
	}

	var runErr error
	select {
	case <-ctx.Done():
		m.logger.Info("Shutting down", "session_id", m.sessionID)
	case <-expired:
		m.logger.Info("Runtime limit reached", "session_id", m.sessionID, "runtime", m.cfg.Runtime)
	case err := <-m.fatal:
		runErr = err
	}

	closed := make(chan struct{})
	client.Close(func(err error) {
		if err != nil {
			m.logger.Error("OnClose", "session_id", m.sessionID, "error", err)
		} else {
			m.logger.Info("OnClose", "session_id", m.sessionID)
		}
		close(closed)
	})
	<-closed
	return runErr
}

func (m *Monitor) onConnect(err error, body string) {
	if err != nil {
		m.logger.Error("OnConnect", "session_id", m.sessionID, "error", err, "detail", body)
		m.reportFailure(fmt.Sprintf("connect failed: %v", err))
		m.fatal <- err
		return
	}
	m.logger.Info("OnConnect", "session_id", m.sessionID)
	m.client.Subscribe(m.onSubscribe, m.onMessage)
}

func (m *Monitor) onSubscribe(err error, body string) {
	if err != nil {
		m.logger.Error("OnSubscribe", "session_id", m.sessionID, "error", err, "detail", body)
		m.reportFailure(fmt.Sprintf("subscribe failed: %v", err))
		m.fatal <- err
		return
	}
	m.logger.Info("OnSubscribe", "session_id", m.sessionID)
}

func (m *Monitor) onDisconnect(err error, _ string) {
	if err != nil {
		m.logger.Error("OnDisconnect", "session_id", m.sessionID, "error", err)
		m.reportFailure(fmt.Sprintf("session lost: %v", err))
		m.fatal <- err
		return
	}
	m.logger.Info("OnDisconnect", "session_id", m.sessionID)
	m.fatal <- fmt.Errorf("session closed by peer")
}

// onMessage applies one inbound passenger event to the graph. Malformed
// bodies and unknown stations are logged and dropped; they never terminate
// the session.
func (m *Monitor) onMessage(err error, body string) {
	if err != nil {
		m.logger.Error("OnMessage", "session_id", m.sessionID, "error", err)
		metrics.MessagesReceived.WithLabelValues("error").Inc()
		return
	}
	metrics.MessagesReceived.WithLabelValues("ok").Inc()

	var msg passengerEventMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		m.logger.Warn("Dropping unparsable event", "session_id", m.sessionID, "body", body, "error", err)
		metrics.EventsDropped.WithLabelValues("bad_json").Inc()
		return
	}
	kind, ok := network.ParseEventType(msg.PassengerEvent)
	if !ok {
		m.logger.Warn("Dropping event with unknown kind", "session_id", m.sessionID, "kind", msg.PassengerEvent)
		metrics.EventsDropped.WithLabelValues("unknown_kind").Inc()
		return
	}

	event := network.PassengerEvent{StationID: network.ID(msg.StationID), Type: kind}
	if err := m.network.RecordPassengerEvent(event); err != nil {
		m.logger.Warn("Dropping event", "session_id", m.sessionID, "station_id", msg.StationID, "error", err)
		metrics.EventsDropped.WithLabelValues("unknown_station").Inc()
		return
	}
	metrics.EventsApplied.WithLabelValues(msg.PassengerEvent).Inc()
	m.logger.Debug("Passenger event applied", "station_id", msg.StationID, "kind", msg.PassengerEvent)

	if m.archive != nil {
		if err := m.archive.RecordEvent(context.Background(), event); err != nil {
			m.logger.Error("Archive write failed", "error", err)
		}
	}
}

func (m *Monitor) reportFailure(reason string) {
	if m.alerts == nil {
		return
	}
	if err := m.alerts.SessionFailure(reason); err != nil {
		m.logger.Error("Alert delivery failed", "error", err)
	}
}

// Network exposes the live graph for direct queries.
func (m *Monitor) Network() *network.Network {
	return m.network
}

// FastestRoute plans the minimum-travel-time journey on the live graph.
func (m *Monitor) FastestRoute(from, to network.ID) network.TravelRoute {
	return m.network.FastestTravelRoute(from, to)
}

// QuietRoute plans a journey applying the quiet-path policy: the quieter
// journey wins when it costs less than 20% extra travel time.
func (m *Monitor) QuietRoute(from, to network.ID) network.TravelRoute {
	return m.network.PlanJourney(from, to)
}

// PassengerCount returns the live counter for a station.
func (m *Monitor) PassengerCount(stationID network.ID) (int64, error) {
	return m.network.PassengerCount(stationID)
}
