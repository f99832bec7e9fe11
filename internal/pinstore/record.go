package pinstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// PinRecord is the persisted state of one token.
type PinRecord struct {
	Status PinStatus
	CIDs   []string
	Error  *PinError

	// LastValidated is set only while Status is StatusPinned.
	LastValidated *time.Time
}

// EffectiveStatus returns StatusNotPinned for absent records.
func (r PinRecord) EffectiveStatus() PinStatus {
	if r.Status == "" {
		return StatusNotPinned
	}
	return r.Status
}

// Clone returns a deep copy safe to hand to observers.
func (r PinRecord) Clone() PinRecord {
	out := r
	if r.CIDs != nil {
		out.CIDs = append([]string(nil), r.CIDs...)
	}
	if r.Error != nil {
		errCopy := *r.Error
		out.Error = &errCopy
	}
	if r.LastValidated != nil {
		ts := *r.LastValidated
		out.LastValidated = &ts
	}
	return out
}

type storedRecord struct {
	Status            PinStatus `json:"status"`
	CIDs              []string  `json:"cids"`
	ValidateTimestamp string    `json:"validate_timestamp,omitempty"`
	Error             *PinError `json:"error,omitempty"`
}

func encodeRecord(r PinRecord) ([]byte, error) {
	stored := storedRecord{
		Status: r.EffectiveStatus(),
		CIDs:   r.CIDs,
		Error:  r.Error,
	}
	if stored.CIDs == nil {
		stored.CIDs = []string{}
	}
	if r.LastValidated != nil {
		stored.ValidateTimestamp = r.LastValidated.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(stored)
}

func decodeRecord(raw []byte) (PinRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return PinRecord{}, fmt.Errorf("decode pin record: %w", err)
	}
	record := PinRecord{
		Status: stored.Status,
		CIDs:   stored.CIDs,
		Error:  stored.Error,
	}
	if record.Status == "" {
		record.Status = StatusNotPinned
	}
	if stored.ValidateTimestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, stored.ValidateTimestamp)
		if err != nil {
			return PinRecord{}, fmt.Errorf("decode validate_timestamp %q: %w", stored.ValidateTimestamp, err)
		}
		record.LastValidated = &ts
	}
	return record, nil
}
