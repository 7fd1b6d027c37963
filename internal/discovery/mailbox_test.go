package discovery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"testing"
)

type fakeConnector struct {
	messages []Message
	err      error
}

func (f fakeConnector) FetchInbox(label string, max int) ([]Message, error) {
	return f.messages, f.err
}

func rawMessage(t *testing.T, subject string, attachments map[string][]byte) []byte {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range attachments {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		_, _ = enc.Write(content)
		_ = enc.Close()
	}
	_ = w.Close()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: broker@example.test\r\n")
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes()
}

func TestMailboxSourceExtractsSpreadsheets(t *testing.T) {
	raw := rawMessage(t, "UW Model - Sunset Ridge", map[string][]byte{
		"Sunset Ridge UW.xlsx": []byte("workbook-bytes"),
		"teaser.docx":          []byte("ignored"),
	})

	src := MailboxSource{
		Connector: fakeConnector{messages: []Message{{Provider: "imap", MessageID: "m1", Raw: raw}}},
		Label:     "INBOX",
		FetchMax:  10,
		InboxDir:  t.TempDir(),
	}

	candidates, err := src.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates=%+v", candidates)
	}
	c := candidates[0]
	if c.Name != "Sunset Ridge UW.xlsx" {
		t.Fatalf("name=%q", c.Name)
	}
	if c.DealName != "Sunset Ridge" {
		t.Fatalf("dealName=%q", c.DealName)
	}
	if c.ContentHash == "" || c.Size == 0 {
		t.Fatalf("incomplete candidate %+v", c)
	}
}

func TestMailboxSourceSkipsMalformedMessages(t *testing.T) {
	src := MailboxSource{
		Connector: fakeConnector{messages: []Message{
			{Provider: "imap", MessageID: "bad", Raw: []byte("total garbage")},
		}},
		InboxDir: t.TempDir(),
	}

	candidates, err := src.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates=%+v", candidates)
	}
}
