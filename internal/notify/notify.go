// Package notify sends lead notifications to the crew via Twilio SMS.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ironpaw/foreman/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator defines the minimal interface for sending an SMS.
// Satisfied by the Twilio REST API service.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the Twilio phone number notifications are sent from.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithTo sets the crew phone number notifications are sent to.
func WithTo(to string) Option {
	return func(o *Opts) { o.To = to }
}

// Client sends lead notifications through the Twilio REST API.
type Client struct {
	api  messageCreator
	from string
	to   string
}

// NewClient creates a Twilio notifier. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and
// FOREMAN_NOTIFY_PHONE environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("FOREMAN_NOTIFY_PHONE")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and notify phone numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Client{api: client.Api, from: cfg.From, to: cfg.To}, nil
}

// NotifyLead sends an SMS summarizing the new lead to the crew phone.
// Best-effort: the caller logs and continues on failure.
func (c *Client) NotifyLead(ctx context.Context, lead models.Lead) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(c.to)
	params.SetFrom(c.from)
	params.SetBody(leadSummary(lead))

	if _, err := c.api.CreateMessage(params); err != nil {
		slog.Error("Twilio NotifyLead failed", "error", err, "leadID", lead.ID)
		return fmt.Errorf("failed to send lead notification for %s: %w", lead.ID, err)
	}
	slog.Info("Twilio NotifyLead succeeded", "leadID", lead.ID, "to_set", c.to != "")
	return nil
}

// leadSummary formats the lead for a single SMS.
func leadSummary(lead models.Lead) string {
	lines := []string{"New mulching lead:"}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, value))
		}
	}
	add("Acreage", lead.Acreage)
	add("Density", lead.Density)
	add("Terrain", lead.Terrain)
	add("Access", lead.Access)
	add("Location", lead.Location)
	add("Name", lead.ContactName)
	add("Phone", lead.Phone)
	add("Email", lead.Email)
	return strings.Join(lines, "\n")
}
