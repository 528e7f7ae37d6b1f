package common

import (
	"time"

	"github.com/mcnijman/go-emailaddress"
)

// AMQPSettings represents the settings that we require in order to connect to the AMQP exchange.
type AMQPSettings struct {
	URI           string
	ExchangeName  string
	ExchangeType  string
	Queue         string
	RoutingPrefix string
}

// SocketSettings represents the settings used to connect to the notification WebSocket endpoint.
type SocketSettings struct {
	URL              string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// APISettings represents the settings used to reach the admin REST API.
type APISettings struct {
	BaseURL string
	Timeout time.Duration
}

// Credentials represents the means by which the service authenticates as an administrator. Either
// the token or the email address and password must be provided.
type Credentials struct {
	Token    string
	Email    string
	Password string
}

// HasLogin returns true if an email address and password are available for logging in.
func (c Credentials) HasLogin() bool {
	return c.Email != "" && c.Password != ""
}

// JournalSettings represents the settings for the optional event journal.
type JournalSettings struct {
	Enabled bool
	Driver  string
	URI     string
}

// Transport kinds.
const (
	TransportWebSocket = "websocket"
	TransportAMQP      = "amqp"
)

// Settings represents the complete configuration of the service.
type Settings struct {
	API               APISettings
	Auth              Credentials
	Transport         string
	Socket            SocketSettings
	AMQP              AMQPSettings
	Journal           JournalSettings
	ReconcileSchedule string
	StatusListen      string
	LogLevel          string
}

// ValidateEmailAddress returns an error if the format of an email address is invalid.
func ValidateEmailAddress(emailAddress string) error {
	_, err := emailaddress.Parse(emailAddress)
	return err
}
