package app

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"warranty_reminder/internal/domain/warranty"
)

const (
	pushItemLimit = 10
	dateLayout    = "2006-01-02"
)

// Urgency is a cosmetic label derived from the horizon; it never affects delivery.
type Urgency string

const (
	UrgencyUrgent    Urgency = "urgent"
	UrgencyImportant Urgency = "important"
	UrgencyReminder  Urgency = "reminder"
)

// UrgencyFor labels a horizon: <=1 day urgent, <=7 days important, else reminder.
func UrgencyFor(horizonDays int) Urgency {
	switch {
	case horizonDays <= 1:
		return UrgencyUrgent
	case horizonDays <= 7:
		return UrgencyImportant
	default:
		return UrgencyReminder
	}
}

// OwnerGroup is the expiring warranties of one owner.
type OwnerGroup struct {
	UserID      int64
	Email       string
	DisplayName string
	Items       []warranty.ExpiringRecord
}

// EmailMessage is a rendered reminder for one recipient.
type EmailMessage struct {
	UserID  int64
	To      string
	Subject string
	Text    string
	HTML    string
}

// PushMessage is a rendered push reminder, for one user or for everybody.
type PushMessage struct {
	UserIDs []int64
	Title   string
	Body    string
	Urgency Urgency
}

// GroupByOwner groups records by user, ordered by user id; items keep expiration order.
func GroupByOwner(records []warranty.ExpiringRecord) []OwnerGroup {
	byUser := make(map[int64]*OwnerGroup)
	var order []int64
	for _, r := range records {
		g, ok := byUser[r.UserID]
		if !ok {
			g = &OwnerGroup{UserID: r.UserID, Email: r.Email, DisplayName: r.DisplayName}
			byUser[r.UserID] = g
			order = append(order, r.UserID)
		}
		g.Items = append(g.Items, r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	groups := make([]OwnerGroup, 0, len(order))
	for _, id := range order {
		g := byUser[id]
		sort.SliceStable(g.Items, func(i, j int) bool {
			return g.Items[i].ExpirationDate.Before(g.Items[j].ExpirationDate)
		})
		groups = append(groups, *g)
	}
	return groups
}

var emailHTML = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif;">
<p>Hello {{.Name}},</p>
<p>The following warranties expire within the next {{.Horizon}} days:</p>
<table cellpadding="4" style="border-collapse: collapse;">
<tr><th align="left">Product</th><th align="left">Expires</th></tr>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>{{.ExpirationDate.Format "2006-01-02"}}</td></tr>
{{end}}</table>
{{if .BaseURL}}<p><a href="{{.BaseURL}}">Open your warranties</a></p>{{end}}
<p style="color: #888;">You receive this because expiration reminders are enabled in your notification settings.</p>
</body></html>`))

// Composer renders channel-specific message bodies.
type Composer struct {
	baseURL string
}

func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: baseURL}
}

// Email renders the reminder of one owner.
func (c *Composer) Email(g OwnerGroup, horizonDays int) (EmailMessage, error) {
	name := g.DisplayName
	if name == "" {
		name = g.Email
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\nThe following warranties expire within the next %d days:\n\n", name, horizonDays)
	for _, it := range g.Items {
		fmt.Fprintf(&text, "- %s: %s\n", it.ProductName, it.ExpirationDate.Format(dateLayout))
	}
	if c.baseURL != "" {
		fmt.Fprintf(&text, "\nOpen your warranties: %s\n", c.baseURL)
	}

	var html bytes.Buffer
	err := emailHTML.Execute(&html, struct {
		Name    string
		Horizon int
		Items   []warranty.ExpiringRecord
		BaseURL string
	}{name, horizonDays, g.Items, c.baseURL})
	if err != nil {
		return EmailMessage{}, fmt.Errorf("render email for user %d: %w", g.UserID, err)
	}

	return EmailMessage{
		UserID:  g.UserID,
		To:      g.Email,
		Subject: emailSubject(len(g.Items), UrgencyFor(horizonDays)),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func emailSubject(n int, u Urgency) string {
	noun := "warranty"
	if n != 1 {
		noun = "warranties"
	}
	switch u {
	case UrgencyUrgent:
		return fmt.Sprintf("Urgent: %d %s expiring tomorrow", n, noun)
	case UrgencyImportant:
		return fmt.Sprintf("Important: %d %s expiring this week", n, noun)
	default:
		return fmt.Sprintf("Reminder: %d %s expiring soon", n, noun)
	}
}

// Push renders one push message over groups. With more than one group each line is
// prefixed with the owner name. Bodies list at most ten items.
func (c *Composer) Push(titlePrefix string, groups []OwnerGroup, horizonDays int) PushMessage {
	withOwner := len(groups) > 1
	var lines []string
	var users []int64
	for _, g := range groups {
		users = append(users, g.UserID)
		for _, it := range g.Items {
			line := fmt.Sprintf("%s (%s)", it.ProductName, it.ExpirationDate.Format(dateLayout))
			if withOwner {
				owner := g.DisplayName
				if owner == "" {
					owner = g.Email
				}
				line = owner + ": " + line
			}
			lines = append(lines, line)
		}
	}

	total := len(lines)
	if total > pushItemLimit {
		lines = append(lines[:pushItemLimit:pushItemLimit], fmt.Sprintf("+%d more", total-pushItemLimit))
	}

	urgency := UrgencyFor(horizonDays)
	noun := "warranty"
	if total != 1 {
		noun = "warranties"
	}
	title := fmt.Sprintf("%s: %d %s expiring soon", titlePrefix, total, noun)
	if urgency != UrgencyReminder {
		title = fmt.Sprintf("[%s] %s", strings.ToUpper(string(urgency)), title)
	}

	return PushMessage{
		UserIDs: users,
		Title:   title,
		Body:    strings.Join(lines, "\n"),
		Urgency: urgency,
	}
}

// relevant keeps the records of one owner that fall within horizon days of today.
func relevant(records []warranty.ExpiringRecord, userID int64, today time.Time, horizonDays int) []warranty.ExpiringRecord {
	var out []warranty.ExpiringRecord
	for _, r := range records {
		if r.UserID == userID && warranty.WithinHorizon(today, r.ExpirationDate, horizonDays) {
			out = append(out, r)
		}
	}
	return out
}
