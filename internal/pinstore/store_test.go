package pinstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
	"nftpin/internal/prefs"
)

var testToken = pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "0x7", IsNFT: true}

type recordedChange struct {
	service string
	token   pinstore.TokenKey
	record  pinstore.PinRecord
}

type recorder struct {
	changes []recordedChange
}

func (r *recorder) OnTokenStatusChanged(service string, token pinstore.TokenKey, record pinstore.PinRecord) {
	r.changes = append(r.changes, recordedChange{service: service, token: token, record: record})
}

func newStore(t *testing.T, now func() time.Time) (*pinstore.Store, *prefs.MemoryStore) {
	t.Helper()
	backing := prefs.NewMemory()
	return pinstore.New(backing, logging.NewNop(), pinstore.WithClock(now)), backing
}

func TestGetAbsentRecordIsNotPinned(t *testing.T) {
	store, _ := newStore(t, time.Now)
	record := store.Get(context.Background(), "", testToken)
	if record.Status != pinstore.StatusNotPinned {
		t.Fatalf("expected not pinned, got %q", record.Status)
	}
	if store.Exists(context.Background(), "", testToken) {
		t.Fatal("expected no stored record")
	}
}

func TestSetStampsValidationOnlyWhenPinned(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newStore(t, func() time.Time { return now })
	ctx := context.Background()

	if err := store.AddCids(ctx, "", testToken, []string{"cid-a", "cid-b"}); err != nil {
		t.Fatalf("AddCids: %v", err)
	}
	if err := store.Set(ctx, "", testToken, pinstore.StatusPinned, nil); err != nil {
		t.Fatalf("Set pinned: %v", err)
	}
	ts, ok := store.GetLastValidateTime(ctx, "", testToken)
	if !ok || !ts.Equal(now) {
		t.Fatalf("expected validate time %v, got %v ok=%v", now, ts, ok)
	}

	pinErr := pinstore.NewPinError(pinstore.ErrCodePinningFailed, "kubo unreachable")
	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningFailed, pinErr); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	record := store.Get(ctx, "", testToken)
	if record.LastValidated != nil {
		t.Fatal("expected validate time cleared for non-pinned status")
	}
	if record.Error == nil || record.Error.Code != pinstore.ErrCodePinningFailed {
		t.Fatalf("expected stored error, got %+v", record.Error)
	}
	if len(record.CIDs) != 2 || record.CIDs[0] != "cid-a" {
		t.Fatalf("expected CIDs preserved, got %v", record.CIDs)
	}

	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningInProgress, nil); err != nil {
		t.Fatalf("Set in progress: %v", err)
	}
	if record := store.Get(ctx, "", testToken); record.Error != nil {
		t.Fatalf("expected error cleared, got %+v", record.Error)
	}
}

func TestStoredFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, backing := newStore(t, func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningPending, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, ok, err := backing.Get(ctx, "nft.local.60.0x1.0xabc.0x7")
	if err != nil || !ok {
		t.Fatalf("expected stored record, ok=%v err=%v", ok, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["status"] != "pinning_pendig" {
		t.Fatalf("expected stored typo token, got %v", doc["status"])
	}
	if _, ok := doc["validate_timestamp"]; ok {
		t.Fatal("validate_timestamp should be omitted when not pinned")
	}

	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningFailed, pinstore.NewPinError(pinstore.ErrCodeNonIPFSTokenURL, "https uri")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, _, _ = backing.Get(ctx, "nft.local.60.0x1.0xabc.0x7")
	doc = nil
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	errDoc, ok := doc["error"].(map[string]any)
	if !ok || errDoc["error_code"] != "ERR_NON_IPFS_TOKEN_URL" || errDoc["error_message"] != "https uri" {
		t.Fatalf("unexpected error document %v", doc["error"])
	}
}

func TestObserversSeePostWriteState(t *testing.T) {
	store, _ := newStore(t, time.Now)
	ctx := context.Background()
	rec := &recorder{}
	remove := store.AddObserver(rec)

	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningInProgress, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Remove(ctx, "", testToken); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(rec.changes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.changes))
	}
	if rec.changes[0].record.Status != pinstore.StatusPinningInProgress {
		t.Fatalf("unexpected first status %q", rec.changes[0].record.Status)
	}
	if rec.changes[1].record.Status != pinstore.StatusNotPinned || rec.changes[1].token != testToken {
		t.Fatalf("unexpected removal notification %+v", rec.changes[1])
	}
	if store.Exists(ctx, "", testToken) {
		t.Fatal("expected record removed")
	}

	remove()
	if err := store.Set(ctx, "", testToken, pinstore.StatusPinned, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(rec.changes) != 2 {
		t.Fatal("removed observer should not be notified")
	}
}

func TestObserverMayReadStore(t *testing.T) {
	store, _ := newStore(t, time.Now)
	ctx := context.Background()
	var seen pinstore.PinStatus
	store.AddObserver(pinstore.ObserverFunc(func(service string, token pinstore.TokenKey, _ pinstore.PinRecord) {
		seen = store.Get(ctx, service, token).Status
	}))
	if err := store.Set(ctx, "", testToken, pinstore.StatusPinned, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if seen != pinstore.StatusPinned {
		t.Fatalf("observer read %q", seen)
	}
}

func TestListKnownTokenPathsScopesByService(t *testing.T) {
	store, _ := newStore(t, time.Now)
	ctx := context.Background()
	other := testToken
	other.TokenID = "0x8"

	for _, tc := range []struct {
		service string
		token   pinstore.TokenKey
	}{
		{"", testToken},
		{"", other},
		{"pinata", testToken},
	} {
		if err := store.Set(ctx, tc.service, tc.token, pinstore.StatusPinned, nil); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	local, err := store.ListKnownTokenPaths(ctx, "")
	if err != nil {
		t.Fatalf("ListKnownTokenPaths: %v", err)
	}
	if len(local) != 2 {
		t.Fatalf("expected 2 local paths, got %v", local)
	}
	if _, ok := local["nft.local.60.0x1.0xabc.0x8"]; !ok {
		t.Fatalf("missing local path in %v", local)
	}
	remote, err := store.ListKnownTokenPaths(ctx, "pinata")
	if err != nil || len(remote) != 1 {
		t.Fatalf("expected 1 remote path, got %v err=%v", remote, err)
	}

	entries, err := store.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(entries) != 2 || entries[0].Token.TokenID != "0x7" || entries[1].Token.TokenID != "0x8" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	removed, err := store.Clear(ctx)
	if err != nil || removed != 3 {
		t.Fatalf("Clear = %d, %v", removed, err)
	}
}

func TestCorruptRecordReadsAsNotPinned(t *testing.T) {
	store, backing := newStore(t, time.Now)
	ctx := context.Background()
	if err := backing.Set(ctx, "nft.local.60.0x1.0xabc.0x7", []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := store.Get(ctx, "", testToken).Status; got != pinstore.StatusNotPinned {
		t.Fatalf("expected not pinned for corrupt record, got %q", got)
	}
	if err := store.Set(ctx, "", testToken, pinstore.StatusPinningPending, nil); err != nil {
		t.Fatalf("Set should overwrite corrupt record: %v", err)
	}
}
