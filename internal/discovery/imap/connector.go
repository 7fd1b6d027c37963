// Package imap fetches candidate model mail over IMAP. Only unseen
// messages large enough to plausibly carry a workbook are pulled; the
// attachment handling itself lives in the discovery mailbox source.
package imap

import (
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/discovery"
)

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool

	// minMessageBytes mirrors the discovery size floor: a message smaller
	// than the smallest acceptable workbook cannot be carrying one.
	minMessageBytes uint32
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:            cfg.IMAPHost,
		port:            cfg.IMAPPort,
		secure:          cfg.IMAPSecure,
		user:            cfg.IMAPUser,
		password:        cfg.IMAPPassword,
		markSeen:        cfg.IMAPMarkSeen,
		minMessageBytes: uint32(cfg.MinFileSizeKB) * 1024,
	}, nil
}

func (c *Connector) FetchInbox(label string, max int) ([]discovery.Message, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Larger = c.minMessageBytes
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	fetched := new(imap.SeqSet)
	out := make([]discovery.Message, 0, len(ids))
	for msg := range messages {
		converted, ok := c.toMessage(msg, section)
		if !ok {
			continue
		}
		out = append(out, converted)
		if msg != nil {
			fetched.AddNum(msg.SeqNum)
		}
	}
	if err := <-fetchDone; err != nil {
		return nil, err
	}

	if c.markSeen && !fetched.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.Store(fetched, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// toMessage converts one fetched message; a message whose body cannot
// be read is dropped rather than failing the whole fetch.
func (c *Connector) toMessage(msg *imap.Message, section *imap.BodySectionName) (discovery.Message, bool) {
	if msg == nil {
		return discovery.Message{}, false
	}
	body := msg.GetBody(section)
	if body == nil {
		return discovery.Message{}, false
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return discovery.Message{}, false
	}

	messageID, subject, from := "", "", ""
	if msg.Envelope != nil {
		messageID = msg.Envelope.MessageId
		subject = msg.Envelope.Subject
		from = formatAddresses(msg.Envelope.From)
	}
	if messageID == "" {
		messageID = fmt.Sprintf("imap-%d", msg.Uid)
	}

	received := time.Now().UTC().Format(time.RFC3339)
	if !msg.InternalDate.IsZero() {
		received = msg.InternalDate.UTC().Format(time.RFC3339)
	}

	return discovery.Message{
		Provider:   "imap",
		MessageID:  messageID,
		Subject:    subject,
		From:       from,
		ReceivedAt: received,
		Raw:        raw,
	}, true
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if c.secure {
		return imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.Dial(addr)
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
