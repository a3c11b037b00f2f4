package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	floraslack "github.com/prite36/floraseven/internal/slack"
)

const mentionReplyTimeout = 30 * time.Second

// handleSlackEvents verifies the request signature with the signing secret,
// answers URL verification and replies to mentions with the health summary.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Slack.SigningSecret == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, s.cfg.Slack.SigningSecret)
	if err != nil {
		log.Printf("[WARN] Rejected Slack request: %v", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[ERROR] Failed to read request body: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if _, err := verifier.Write(body); err != nil {
		log.Printf("[ERROR] Failed to write body to verifier: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := verifier.Ensure(); err != nil {
		log.Printf("[WARN] Invalid Slack signature: %v", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Printf("[ERROR] Failed to parse Slack event: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		log.Printf("[INFO] Responded to Slack URL verification challenge.")
	case slackevents.CallbackEvent:
		if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			go s.replyToMention(mention)
		} else {
			log.Printf("[INFO] Ignoring Slack callback event: %s", event.InnerEvent.Type)
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) replyToMention(ev *slackevents.AppMentionEvent) {
	if s.slack == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mentionReplyTimeout)
	defer cancel()

	text := "I could not read the plant status right now, please try again later."
	if status, err := s.monitor.ComputeStatus(ctx); err != nil {
		log.Printf("[ERROR] Failed to compute status for Slack mention: %v", err)
	} else {
		text = floraslack.HealthSummary(status.OverallHealth)
	}

	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}
	s.slack.PostReply(ev.Channel, thread, text)
}
