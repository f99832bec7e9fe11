package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"nftpin/internal/config"
	"nftpin/internal/logging"
	"nftpin/internal/notifications"
	"nftpin/internal/pinstore"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

type ntfyRecorder struct {
	mu       sync.Mutex
	messages []captured
}

func (r *ntfyRecorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.messages...)
}

func newNtfy(t *testing.T) (*ntfyRecorder, *httptest.Server) {
	t.Helper()
	rec := &ntfyRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.messages = append(rec.messages, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return rec, server
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPinFailed(context.Background(), "nft.local.60.0x1.0xabc.1", "ERR_FETCH_METADATA_FAILED", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "pinned",
			send: func(s notifications.Service) error {
				return s.NotifyPinned(context.Background(), "nft.local.60.0x1.0xabc.1", 2)
			},
			expectTitle:   "nftpin - Pinned",
			expectMessage: "📌 Pinned nft.local.60.0x1.0xabc.1 (2 CIDs)",
			expectTags:    "nftpin,pin,completed",
		},
		{
			name: "pin failed",
			send: func(s notifications.Service) error {
				return s.NotifyPinFailed(context.Background(), "nft.local.60.0x1.0xabc.1", "ERR_NON_IPFS_TOKEN_URL", "https://example.com/1.json")
			},
			expectTitle:    "nftpin - Pin Failed",
			expectMessage:  "❌ Pinning failed for nft.local.60.0x1.0xabc.1 [ERR_NON_IPFS_TOKEN_URL]: https://example.com/1.json",
			expectTags:     "nftpin,pin,failed",
			expectPriority: "high",
		},
		{
			name: "unpin failed",
			send: func(s notifications.Service) error {
				return s.NotifyUnpinFailed(context.Background(), "nft.local.60.0x1.0xabc.1", "kubo unreachable")
			},
			expectTitle:   "nftpin - Unpin Failed",
			expectMessage: "⚠️ Unpinning failed for nft.local.60.0x1.0xabc.1: kubo unreachable",
			expectTags:    "nftpin,unpin,failed",
		},
		{
			name: "autopin enabled",
			send: func(s notifications.Service) error {
				return s.NotifyAutoPinChanged(context.Background(), true)
			},
			expectTitle:   "nftpin - Auto-pin enabled",
			expectMessage: "Auto-pin enabled",
			expectTags:    "nftpin,autopin,enabled",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "nftpin - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "nftpin,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, server := newNtfy(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx reply")
	}
}

func TestObserverNotifiesOnTransitionsOnly(t *testing.T) {
	rec, server := newNtfy(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Pinned = true
	observer := notifications.NewObserver(&cfg, notifications.NewService(&cfg), logging.NewNop())

	token := pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "1", IsNFT: true}
	pinned := pinstore.PinRecord{Status: pinstore.StatusPinned, CIDs: []string{"a"}}

	observer.OnTokenStatusChanged("", token, pinstore.PinRecord{Status: pinstore.StatusPinningInProgress})
	observer.OnTokenStatusChanged("", token, pinned)
	observer.OnTokenStatusChanged("", token, pinned)
	observer.OnTokenStatusChanged("", token, pinstore.PinRecord{
		Status: pinstore.StatusPinningFailed,
		Error:  pinstore.NewPinError(pinstore.ErrCodeFetchMetadataFailed, "rpc down"),
	})
	observer.Wait()

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected pinned and failed notifications, got %d: %+v", len(got), got)
	}
	titles := map[string]bool{got[0].title: true, got[1].title: true}
	if !titles["nftpin - Pinned"] || !titles["nftpin - Pin Failed"] {
		t.Fatalf("unexpected titles %v", titles)
	}
}

func TestObserverPrimeSuppressesRevalidation(t *testing.T) {
	rec, server := newNtfy(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Pinned = true
	observer := notifications.NewObserver(&cfg, notifications.NewService(&cfg), logging.NewNop())

	token := pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "1", IsNFT: true}
	path, err := pinstore.EncodePath("", token)
	if err != nil {
		t.Fatalf("EncodePath: %v", err)
	}
	pinned := pinstore.PinRecord{Status: pinstore.StatusPinned, CIDs: []string{"a"}}
	observer.Prime([]pinstore.Entry{{Token: token, Path: path, Record: pinned}})

	observer.OnTokenStatusChanged("", token, pinned)
	observer.Wait()
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no notification for a re-validated token, got %+v", got)
	}
}

func TestObserverRespectsToggles(t *testing.T) {
	rec, server := newNtfy(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Pinned = false
	cfg.Notifications.AutoPinChanges = false
	observer := notifications.NewObserver(&cfg, notifications.NewService(&cfg), logging.NewNop())

	token := pinstore.TokenKey{CoinType: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "1", IsNFT: true}
	observer.OnTokenStatusChanged("", token, pinstore.PinRecord{Status: pinstore.StatusPinned})
	observer.OnAutoPinStatusChanged(true)
	observer.Wait()
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected toggled-off events to stay quiet, got %+v", got)
	}
}
