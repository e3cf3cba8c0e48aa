package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dumpwatch/internal/artifact"
)

// Batch is the set of not-yet-notified artifacts found in one cycle.
type Batch []artifact.Artifact

// Names returns the artifact names in batch order.
func (b Batch) Names() []string { return artifact.Names(b) }

// TotalSize sums artifact sizes in bytes.
func (b Batch) TotalSize() int64 { return artifact.TotalSize(b) }

// Policy is the slice of watch configuration the dispatcher needs.
type Policy struct {
	Recipients         []string
	Title              string
	Subject            string
	IncludeAttachments bool
	MaxAttachmentBytes int64
	SendTimeout        time.Duration
}

// Message is what a transport delivers. Attachments are absolute file paths.
type Message struct {
	Title       string
	Body        string
	Recipients  []string
	Attachments []string
}

// AttachmentsAllowed reports whether the batch fits the attachment budget.
// The total must be strictly below the budget.
func AttachmentsAllowed(batch Batch, policy Policy) bool {
	return policy.IncludeAttachments && batch.TotalSize() < policy.MaxAttachmentBytes
}

// Compose builds the message for batch under policy.
func Compose(batch Batch, policy Policy) Message {
	var body strings.Builder
	if subject := strings.TrimSpace(policy.Subject); subject != "" {
		body.WriteString(subject)
		body.WriteString("\n\n")
	}
	body.WriteString("List of dumps:\n")
	for _, a := range batch {
		fmt.Fprintf(&body, "  %s  (%s, modified %s)\n",
			a.Name, humanize.IBytes(uint64(max(a.Size, 0))), a.ModTime.Local().Format("2006-01-02 15:04:05"))
	}

	attachAllowed := AttachmentsAllowed(batch, policy)
	if policy.IncludeAttachments && !attachAllowed {
		fmt.Fprintf(&body, "\nFiles not attached: %s total exceeds the %s attachment limit.\n",
			humanize.IBytes(uint64(max(batch.TotalSize(), 0))), humanize.IBytes(uint64(max(policy.MaxAttachmentBytes, 0))))
	}

	msg := Message{
		Title:      policy.Title,
		Body:       body.String(),
		Recipients: append([]string(nil), policy.Recipients...),
	}
	if attachAllowed {
		msg.Attachments = make([]string, 0, len(batch))
		for _, a := range batch {
			msg.Attachments = append(msg.Attachments, a.Path)
		}
	}
	return msg
}

// ComposeTest builds the test message sent by the test-notify command.
func ComposeTest(policy Policy, now time.Time) Message {
	title := strings.TrimSpace(policy.Title)
	if title == "" {
		title = "dumpwatch"
	}
	return Message{
		Title:      title + " (test)",
		Body:       fmt.Sprintf("Test notification from dumpwatch at %s.\nNo dumps are attached.\n", now.Local().Format("2006-01-02 15:04:05")),
		Recipients: append([]string(nil), policy.Recipients...),
	}
}
