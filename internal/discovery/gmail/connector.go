// Package gmail fetches candidate model mail through the Gmail API.
// The list call is scoped server-side to attachment-bearing messages so
// plain correspondence never crosses the wire.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
)

// modelMailQuery narrows the listing to mail that can actually feed the
// pipeline: a spreadsheet attachment, or a PDF teaser travelling with one.
const modelMailQuery = "has:attachment (filename:xlsx OR filename:xlsm OR filename:xls OR filename:pdf)"

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

func (c *Connector) FetchInbox(label string, max int) ([]discovery.Message, error) {
	listResp, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q(modelMailQuery).
		MaxResults(int64(max)).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]discovery.Message, 0, len(listResp.Messages))
	for _, msgRef := range listResp.Messages {
		if msgRef.Id == "" {
			continue
		}
		msg, ok := c.fetchOne(msgRef.Id)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// fetchOne pulls one message's raw bytes and headers. A message that
// fails to download or decode is dropped; the next listing sees it again.
func (c *Connector) fetchOne(id string) (discovery.Message, bool) {
	rawResp, err := c.service.Users.Messages.Get("me", id).Format("raw").Do()
	if err != nil || rawResp.Raw == "" {
		return discovery.Message{}, false
	}
	rawBytes, err := decodeBase64URL(rawResp.Raw)
	if err != nil {
		return discovery.Message{}, false
	}

	metaResp, err := c.service.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "From", "Date", "Message-ID").
		Do()
	if err != nil {
		return discovery.Message{}, false
	}

	headers := map[string]string{}
	if metaResp.Payload != nil {
		for _, h := range metaResp.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
	}

	received := time.Now().UTC().Format(time.RFC3339)
	if t, err := parseMailDate(headers["date"]); err == nil {
		received = t.UTC().Format(time.RFC3339)
	}

	messageID := headers["message-id"]
	if messageID == "" {
		messageID = id
	}

	return discovery.Message{
		Provider:   "gmail",
		MessageID:  messageID,
		Subject:    headers["subject"],
		From:       headers["from"],
		ReceivedAt: received,
		Raw:        rawBytes,
	}, true
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}

func parseMailDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date header")
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format")
}
