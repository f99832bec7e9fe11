package ipc

import (
	"time"

	"nftpin/internal/pinstore"
)

// RecordFromEntry flattens a stored record for the wire.
func RecordFromEntry(entry pinstore.Entry) Record {
	record := Record{
		Path:    entry.Path,
		Service: pinstore.ServiceName(entry.Service),
		Token:   TokenFromKey(entry.Token),
		Status:  string(entry.Record.EffectiveStatus()),
		CIDs:    append([]string(nil), entry.Record.CIDs...),
	}
	if entry.Record.Error != nil {
		record.ErrorCode = string(entry.Record.Error.Code)
		record.ErrorMessage = entry.Record.Error.Message
	}
	if entry.Record.LastValidated != nil {
		record.LastValidated = entry.Record.LastValidated.UTC().Format(time.RFC3339)
	}
	return record
}
