package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rankandrent/exchange-intake/internal/leads"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []EmailMessage
	fails map[string]error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{fails: map[string]error{}}
}

func (s *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fails[msg.To]; ok {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.To
	}
	return out
}

func testLead() leads.Lead {
	return leads.Lead{
		Name:        "Jane Doe",
		Email:       "jane@example.com",
		Phone:       "2065550100",
		ProjectType: "Forward Exchange",
		Source:      "website",
		SubmittedAt: time.Now().UTC(),
	}
}

func testBrand() Brand {
	return Brand{SiteName: "Seattle 1031 Exchange", SiteURL: "https://example.com"}
}

func TestNewDispatcherFiltersRecipients(t *testing.T) {
	d := NewDispatcher(newRecordingSender(), DispatcherConfig{
		InternalRecipients: []string{" ops@example.com ", "", "ops@example.com", "OPS@example.com", "sales@example.com"},
	}, nil, nil)

	got := d.Recipients()
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients after filtering, got %v", got)
	}
	if got[0] != "ops@example.com" || got[1] != "sales@example.com" {
		t.Errorf("unexpected recipients %v", got)
	}
}

func TestSendCustomerConfirmation(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(sender, DispatcherConfig{CustomerTemplateID: "d-customer"}, nil, nil)

	if err := d.SendCustomerConfirmation(context.Background(), testBrand(), testLead()); err != nil {
		t.Fatalf("confirmation: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "jane@example.com" {
		t.Errorf("expected send to lead email, got %s", msg.To)
	}
	if msg.TemplateID != "d-customer" {
		t.Errorf("expected customer template, got %s", msg.TemplateID)
	}
	if msg.TemplateData["siteName"] != "Seattle 1031 Exchange" {
		t.Errorf("expected brand merged into template data, got %v", msg.TemplateData)
	}
	if msg.TemplateData["projectType"] != "Forward Exchange" {
		t.Errorf("expected lead fields merged into template data, got %v", msg.TemplateData)
	}
}

func TestSendInternalNotificationsFanOut(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(sender, DispatcherConfig{
		InternalRecipients: []string{"a@example.com", "b@example.com", "c@example.com"},
	}, nil, nil)

	if err := d.SendInternalNotifications(context.Background(), testBrand(), testLead()); err != nil {
		t.Fatalf("fan-out: %v", err)
	}
	if got := sender.sentTo(); len(got) != 3 {
		t.Fatalf("expected 3 sends, got %v", got)
	}
}

func TestSendInternalNotificationsPartialFailure(t *testing.T) {
	sender := newRecordingSender()
	sender.fails["b@example.com"] = errors.New("mailbox on fire")
	d := NewDispatcher(sender, DispatcherConfig{
		InternalRecipients: []string{"a@example.com", "b@example.com", "c@example.com"},
	}, nil, nil)

	err := d.SendInternalNotifications(context.Background(), testBrand(), testLead())
	if err == nil {
		t.Fatal("expected aggregated error for the failed recipient")
	}

	// The two healthy recipients must still have been contacted.
	got := sender.sentTo()
	if len(got) != 2 {
		t.Fatalf("expected 2 successful sends despite one failure, got %v", got)
	}
	for _, to := range got {
		if to == "b@example.com" {
			t.Error("failed recipient should not appear in successful sends")
		}
	}
}

func TestDispatchRunsBothPaths(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(sender, DispatcherConfig{
		InternalRecipients: []string{"ops@example.com"},
	}, nil, nil)

	d.Dispatch(context.Background(), testBrand(), testLead())

	got := sender.sentTo()
	if len(got) != 2 {
		t.Fatalf("expected customer + internal sends, got %v", got)
	}
}

func TestDispatcherMissingProvider(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{InternalRecipients: []string{"ops@example.com"}}, nil, nil)

	if err := d.SendCustomerConfirmation(context.Background(), testBrand(), testLead()); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
	if err := d.SendInternalNotifications(context.Background(), testBrand(), testLead()); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
	// Dispatch must settle without panicking even with no provider.
	d.Dispatch(context.Background(), testBrand(), testLead())
}

func TestDispatcherNoRecipients(t *testing.T) {
	sender := newRecordingSender()
	d := NewDispatcher(sender, DispatcherConfig{}, nil, nil)

	if err := d.SendInternalNotifications(context.Background(), testBrand(), testLead()); err != nil {
		t.Fatalf("empty fan-out should be a no-op, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(sender.sent))
	}
}
