package discovery

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// Message is one raw mail message pulled from a provider.
type Message struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// MailConnector fetches raw messages from one mail provider.
type MailConnector interface {
	FetchInbox(label string, max int) ([]Message, error)
}

// MailboxSource pulls spreadsheet attachments out of a mailbox and drops
// them into the inbox. Deal-name hints come from the subject line, or
// from a PDF cover page travelling with the model.
type MailboxSource struct {
	Connector MailConnector
	Label     string
	FetchMax  int
	InboxDir  string
}

func (s MailboxSource) Name() string { return "mailbox" }

func (s MailboxSource) Discover(ctx context.Context) ([]internal.FileCandidate, error) {
	messages, err := s.Connector.FetchInbox(s.Label, s.FetchMax)
	if err != nil {
		return nil, err
	}

	var out []internal.FileCandidate
	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		candidates, err := s.extractMessage(msg)
		if err != nil {
			// A malformed message degrades to zero candidates.
			continue
		}
		out = append(out, candidates...)
	}
	return out, nil
}

func (s MailboxSource) extractMessage(msg Message) ([]internal.FileCandidate, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, err
	}

	hint := dealNameFromSubject(firstNonEmpty(env.GetHeader("Subject"), msg.Subject))
	var spreadsheets []*enmime.Part
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		switch {
		case IsSpreadsheet(name):
			spreadsheets = append(spreadsheets, att)
		case strings.HasSuffix(strings.ToLower(name), ".pdf"):
			if fromPDF := dealNameFromPDF(att.Content); fromPDF != "" {
				hint = fromPDF
			}
		}
	}

	var out []internal.FileCandidate
	for _, att := range spreadsheets {
		localPath, err := SaveToInbox(s.InboxDir, att.FileName, att.Content)
		if err != nil {
			continue
		}
		info, err := os.Stat(localPath)
		if err != nil {
			continue
		}

		candidate := internal.FileCandidate{
			Name:       att.FileName,
			Path:       localPath,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
			DealName:   hint,
		}
		if hash, err := HashFile(localPath); err == nil {
			candidate.ContentHash = hash
		}
		out = append(out, candidate)
	}
	return out, nil
}

var reSubjectNoise = regexp.MustCompile(`(?i)^(re|fwd?|fw)\s*:\s*`)

// dealNameFromSubject strips reply/forward markers and anything after a
// separator; "UW Model - Sunset Ridge" hints "Sunset Ridge" only when the
// left side is boilerplate.
func dealNameFromSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for reSubjectNoise.MatchString(s) {
		s = reSubjectNoise.ReplaceAllString(s, "")
	}
	for _, sep := range []string{" - ", " – ", ": "} {
		if i := strings.Index(s, sep); i >= 0 {
			left, right := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):])
			if isBoilerplate(left) && right != "" {
				s = right
			} else {
				s = left
			}
			break
		}
	}
	return strings.TrimSpace(s)
}

func isBoilerplate(s string) bool {
	switch strings.ToLower(s) {
	case "uw", "uw model", "underwriting", "underwriting model", "model", "deal", "new deal":
		return true
	}
	return false
}

// dealNameFromPDF reads the first text line of a cover page.
func dealNameFromPDF(content []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}
	if reader.NumPage() < 1 {
		return ""
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 4 {
			return line
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
