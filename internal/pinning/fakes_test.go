package pinning_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nftpin/internal/logging"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
	"nftpin/internal/prefs"
)

const (
	metadataCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	imageCID    = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

var nftToken = pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "0x7", IsNFT: true}

type fakeBackend struct {
	added       map[string][]string
	removed     []string
	addErr      error
	removeErr   error
	validOK     bool
	validateErr error
	addCalls    int
	resetCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{added: make(map[string][]string), validOK: true}
}

func (f *fakeBackend) AddPins(_ context.Context, key string, cids []string) error {
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.added[key] = append([]string(nil), cids...)
	return nil
}

func (f *fakeBackend) RemovePins(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, key)
	delete(f.added, key)
	return nil
}

func (f *fakeBackend) ValidatePins(_ context.Context, _ string, _ []string) (bool, error) {
	return f.validOK, f.validateErr
}

type resettableBackend struct {
	*fakeBackend
}

func (r resettableBackend) ResetAll(context.Context) error {
	r.resetCalls++
	r.added = make(map[string][]string)
	return nil
}

type fakeMeta struct {
	uri   string
	body  string
	err   error
	calls int
}

func (f *fakeMeta) GetMetadata(_ context.Context, _, _, _ string) (string, []byte, error) {
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.uri, []byte(f.body), nil
}

var errBoom = errors.New("boom")

type harness struct {
	store    *pinstore.Store
	backend  *fakeBackend
	meta     *fakeMeta
	rec      *pinning.Reconciler
	now      time.Time
	statuses []pinstore.PinStatus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		meta: &fakeMeta{
			uri:  "ipfs://" + metadataCID + "/7.json",
			body: `{"name":"Token 7","image":"ipfs://` + imageCID + `/7.png"}`,
		},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.store = pinstore.New(prefs.NewMemory(), logging.NewNop(), pinstore.WithClock(func() time.Time { return h.now }))
	h.store.AddObserver(pinstore.ObserverFunc(func(_ string, _ pinstore.TokenKey, record pinstore.PinRecord) {
		h.statuses = append(h.statuses, record.Status)
	}))
	h.rec = pinning.NewReconciler(h.store, h.backend, h.meta, logging.NewNop())
	return h
}
