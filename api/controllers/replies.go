package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/freightbid-backend/api/responses"
	"github.com/angelmondragon/freightbid-backend/api/validators"
	"github.com/angelmondragon/freightbid-backend/internal/replies"
	pkgerrors "github.com/angelmondragon/freightbid-backend/pkg/errors"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

const maxReplyBodyBytes = 256 << 10

type replyRequest struct {
	MessageID  string     `json:"message_id" validate:"max=512"`
	From       string     `json:"from" validate:"required,max=512"`
	Subject    string     `json:"subject" validate:"max=1024"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"received_at"`
}

// ReceiveReply accepts a parsed inbound email and queues it on the reply
// feed. Matching happens in the negotiator, not here.
func ReceiveReply(sink replies.Sink, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sink == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "reply feed not configured"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxReplyBodyBytes)

		var req replyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg := replies.Message{
			ID:         validators.SanitizeString(req.MessageID, 512),
			From:       validators.SanitizeString(req.From, 512),
			Subject:    validators.SanitizeString(req.Subject, 1024),
			Body:       req.Body,
			ReceivedAt: time.Now().UTC(),
		}
		if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
			msg.ReceivedAt = req.ReceivedAt.UTC()
		}
		if err := msg.Validate(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		id, err := sink.Publish(r.Context(), msg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reply"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"id": id})
	}
}
