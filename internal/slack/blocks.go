package slack

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/prite36/floraseven/internal/health"
)

func statusEmoji(s health.OverallStatus) string {
	switch s {
	case health.Healthy:
		return ":seedling:"
	case health.NeedsAttention:
		return ":warning:"
	default:
		return ":rotating_light:"
	}
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

// InfoBlocks is a header followed by a markdown body.
func InfoBlocks(title, message string) []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(plainText(title)),
		slack.NewSectionBlock(markdown(message), nil, nil),
	}
}

// NewInfoMessage builds a simple notification with fallback text.
func NewInfoMessage(title, message string) slack.MsgOption {
	return slack.MsgOptionCompose(
		slack.MsgOptionText(fmt.Sprintf("%s: %s", title, message), false),
		slack.MsgOptionBlocks(InfoBlocks(title, message)...),
	)
}

// HealthAlertBlocks renders a fused health verdict: status and score,
// suggestions, then one context line per monitored parameter.
func HealthAlertBlocks(overall health.OverallHealth, index health.ConditionIndex, at time.Time) []slack.Block {
	title := fmt.Sprintf("%s Plant health: %s", statusEmoji(overall.Status), overall.Status.Title())

	blocks := []slack.Block{
		slack.NewHeaderBlock(plainText(title)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			markdown(fmt.Sprintf("*Status*\n%s", overall.Status.Title())),
			markdown(fmt.Sprintf("*Score*\n%d/100", overall.Score)),
		}, nil),
	}

	if len(overall.Suggestions) > 0 {
		var sb strings.Builder
		sb.WriteString("*Suggestions*")
		for _, s := range overall.Suggestions {
			sb.WriteString("\n• ")
			sb.WriteString(s)
		}
		blocks = append(blocks, slack.NewSectionBlock(markdown(sb.String()), nil, nil))
	}

	if len(index) > 0 {
		elements := make([]slack.MixedElement, 0, len(index))
		for _, e := range index {
			elements = append(elements, markdown(fmt.Sprintf("%s: *%g* (%s)", e.Parameter.Label(), e.Value, e.Status)))
		}
		blocks = append(blocks, slack.NewDividerBlock(), slack.NewContextBlock("", elements...))
	}

	blocks = append(blocks, slack.NewContextBlock("", markdown(at.Format("2006-01-02 15:04 MST"))))
	return blocks
}

// NewHealthAlert builds the health alert message.
func NewHealthAlert(overall health.OverallHealth, index health.ConditionIndex, at time.Time) slack.MsgOption {
	return slack.MsgOptionCompose(
		slack.MsgOptionText(HealthSummary(overall), false),
		slack.MsgOptionBlocks(HealthAlertBlocks(overall, index, at)...),
	)
}

// HealthSummary is a plain text rendition of the verdict, used for fallback
// text and mention replies.
func HealthSummary(overall health.OverallHealth) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plant health: %s (score %d/100)", overall.Status.Title(), overall.Score)
	for _, s := range overall.Suggestions {
		sb.WriteString("\n• ")
		sb.WriteString(s)
	}
	return sb.String()
}
