package app

import (
	"fmt"
	"strings"
	"testing"

	"warranty_reminder/internal/domain/warranty"
)

func rec(userID int64, name, product, date string) warranty.ExpiringRecord {
	return warranty.ExpiringRecord{
		UserID:         userID,
		Email:          fmt.Sprintf("user%d@example.com", userID),
		DisplayName:    name,
		ProductName:    product,
		ExpirationDate: utc(date + " 00:00"),
	}
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		horizon int
		want    Urgency
	}{
		{1, UrgencyUrgent},
		{2, UrgencyImportant},
		{7, UrgencyImportant},
		{8, UrgencyReminder},
		{30, UrgencyReminder},
	}
	for _, tt := range tests {
		if got := UrgencyFor(tt.horizon); got != tt.want {
			t.Errorf("UrgencyFor(%d) = %q, want %q", tt.horizon, got, tt.want)
		}
	}
}

func TestGroupByOwner(t *testing.T) {
	groups := GroupByOwner([]warranty.ExpiringRecord{
		rec(2, "Bob", "Drill", "2026-03-20"),
		rec(1, "Ann", "Laptop", "2026-03-15"),
		rec(2, "Bob", "Fridge", "2026-03-10"),
	})
	if len(groups) != 2 || groups[0].UserID != 1 || groups[1].UserID != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[1].Items[0].ProductName != "Fridge" {
		t.Errorf("items not ordered by expiration: %+v", groups[1].Items)
	}
}

func TestComposeEmail(t *testing.T) {
	c := NewComposer("https://warranty.example.com")
	g := GroupByOwner([]warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop <Pro>", "2026-03-15"),
		rec(1, "Ann", "Phone", "2026-03-10"),
	})[0]

	msg, err := c.Email(g, 30)
	if err != nil {
		t.Fatalf("Email: %v", err)
	}
	if msg.To != "user1@example.com" || msg.UserID != 1 {
		t.Errorf("recipient = %q/%d", msg.To, msg.UserID)
	}
	if msg.Subject != "Reminder: 2 warranties expiring soon" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, line := range []string{"- Phone: 2026-03-10", "- Laptop <Pro>: 2026-03-15", "https://warranty.example.com"} {
		if !strings.Contains(msg.Text, line) {
			t.Errorf("text body missing %q:\n%s", line, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, "Laptop &lt;Pro&gt;") {
		t.Errorf("html body not escaped:\n%s", msg.HTML)
	}
	if strings.Index(msg.Text, "Phone") > strings.Index(msg.Text, "Laptop") {
		t.Error("items not in expiration order")
	}
}

func TestComposeEmailSubjectByUrgency(t *testing.T) {
	c := NewComposer("")
	g := GroupByOwner([]warranty.ExpiringRecord{rec(1, "", "Phone", "2026-03-03")})[0]

	msg, _ := c.Email(g, 1)
	if msg.Subject != "Urgent: 1 warranty expiring tomorrow" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.HasPrefix(msg.Text, "Hello user1@example.com,") {
		t.Errorf("missing display name did not fall back to email: %q", msg.Text)
	}
	msg, _ = c.Email(g, 7)
	if msg.Subject != "Important: 1 warranty expiring this week" {
		t.Errorf("subject = %q", msg.Subject)
	}
}

func TestComposePushTruncates(t *testing.T) {
	var recs []warranty.ExpiringRecord
	for i := 0; i < 13; i++ {
		recs = append(recs, rec(1, "Ann", fmt.Sprintf("Item %02d", i), fmt.Sprintf("2026-03-%02d", i+3)))
	}
	msg := NewComposer("").Push("Warracker", GroupByOwner(recs), 30)

	lines := strings.Split(msg.Body, "\n")
	if len(lines) != 11 {
		t.Fatalf("body has %d lines, want 11:\n%s", len(lines), msg.Body)
	}
	if lines[10] != "+3 more" {
		t.Errorf("last line = %q", lines[10])
	}
	if lines[0] != "Item 00 (2026-03-03)" {
		t.Errorf("single owner line was prefixed: %q", lines[0])
	}
	if msg.Title != "Warracker: 13 warranties expiring soon" {
		t.Errorf("title = %q", msg.Title)
	}
}

func TestComposePushMultipleOwners(t *testing.T) {
	msg := NewComposer("").Push("Warracker", GroupByOwner([]warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-03"),
		rec(2, "", "Drill", "2026-03-04"),
	}), 1)

	if msg.Title != "[URGENT] Warracker: 2 warranties expiring soon" {
		t.Errorf("title = %q", msg.Title)
	}
	want := "Ann: Laptop (2026-03-03)\nuser2@example.com: Drill (2026-03-04)"
	if msg.Body != want {
		t.Errorf("body = %q, want %q", msg.Body, want)
	}
	if len(msg.UserIDs) != 2 {
		t.Errorf("user ids = %v", msg.UserIDs)
	}
}
