package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// Decode unmarshals the payload into v and backfills the envelope metadata when the body omits it.
func Decode(msg *message.Message, v interface{}) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	if carrier, ok := v.(interface{ Meta() *models.MessageMeta }); ok {
		meta := carrier.Meta()
		if meta.CorrelationID == "" {
			meta.CorrelationID = middleware.MessageCorrelationID(msg)
		}
		if raw := msg.Metadata.Get(MetadataPriority); raw != "" {
			if p, err := strconv.Atoi(raw); err == nil {
				meta.Priority = models.Priority(p)
			}
		}
	}
	return nil
}
