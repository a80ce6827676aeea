// Package source reads scraper exports and decodes them into batches.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// Decode parses an export payload. The payload is either a JSON array of
// records or an object with a "roles" array. Each element is decoded on its
// own so one malformed record does not sink the batch.
func Decode(data []byte) (model.Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.Batch{}, fmt.Errorf("empty payload: %w", model.ErrInvalidBatch)
	}

	var elems []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &elems); err != nil {
			return model.Batch{}, fmt.Errorf("decoding record array: %v: %w", err, model.ErrInvalidBatch)
		}
	case '{':
		var wrapper struct {
			Roles *[]json.RawMessage `json:"roles"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return model.Batch{}, fmt.Errorf("decoding export object: %v: %w", err, model.ErrInvalidBatch)
		}
		if wrapper.Roles == nil {
			return model.Batch{}, fmt.Errorf("export object has no roles array: %w", model.ErrInvalidBatch)
		}
		elems = *wrapper.Roles
	default:
		return model.Batch{}, fmt.Errorf("payload must be an array or object: %w", model.ErrInvalidBatch)
	}

	batch := model.Batch{Records: make([]model.RawRecord, 0, len(elems))}
	for i, raw := range elems {
		var rec model.RawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			batch.Rejected = append(batch.Rejected, model.RecordError{
				Index:      i,
				ExternalID: peekID(raw),
				Message:    fmt.Sprintf("malformed record: %v", err),
			})
			continue
		}
		if rec.ID == "" {
			batch.Rejected = append(batch.Rejected, model.RecordError{Index: i, Message: "missing id"})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// peekID recovers the id of a record whose other fields failed to decode.
func peekID(raw json.RawMessage) string {
	var peek struct {
		ID model.SourceID `json:"id"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return ""
	}
	return string(peek.ID)
}
