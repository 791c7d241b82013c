package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// Email is a rendered message ready for a Sender
type Email struct {
	Subject string
	HTML    string
}

// catalog holds the English texts for notification title and message keys.
// Placeholders are {name} references into the notification params.
var catalog = map[string]string{
	"notification.comment_reply.title":   "{username} replied to your comment",
	"notification.comment_reply.message": "{username} replied to your comment on \"{pageName}\": {preview}",
	"notification.new_comment.title":     "New comment on {pageName}",
	"notification.new_comment.message":   "{username} commented on \"{pageName}\": {preview}",
	"notification.page_update.title":     "{pageName} was updated",
	"notification.page_update.message":   "{username} updated \"{pageName}\".",
}

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
<p>Hello {{.Name}},</p>
{{if .Digest}}<p>Here is your {{.Cadence}} summary.</p>{{end}}
<ul>
{{range .Items}}<li><strong>{{.Title}}</strong><br>{{.Message}}{{if .Link}}<br><a href="{{.Link}}">Open</a>{{end}}</li>
{{end}}</ul>
{{if .SettingsLink}}<p style="font-size: 12px; color: #888;">You can change how often you get these emails in your <a href="{{.SettingsLink}}">notification settings</a>.</p>{{end}}
</body>
</html>`

type item struct {
	Title   string
	Message string
	Link    string
}

type page struct {
	Name         string
	Digest       bool
	Cadence      string
	Items        []item
	SettingsLink string
}

// Renderer turns notifications into emails; user content is escaped by html/template
type Renderer struct {
	baseURL string
	tmpl    *template.Template
}

// NewRenderer creates a renderer whose links point at baseURL (may be empty)
func NewRenderer(baseURL string) (*Renderer, error) {
	tmpl, err := template.New("email").Parse(layout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email layout: %w", err)
	}
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), tmpl: tmpl}, nil
}

// Translate resolves a catalog key against params; unknown keys render as the key itself
func Translate(key string, params map[string]string) string {
	text, ok := catalog[key]
	if !ok {
		return key
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// RenderSingle renders the email for one notification
func (r *Renderer) RenderSingle(recipient *models.Account, n *models.Notification) (*Email, error) {
	it := r.item(n)
	html, err := r.execute(page{
		Name:         displayName(recipient),
		Items:        []item{it},
		SettingsLink: r.settingsLink(),
	})
	if err != nil {
		return nil, err
	}
	return &Email{Subject: it.Title, HTML: html}, nil
}

// RenderDigest renders one email listing every notification of a cadence window
func (r *Renderer) RenderDigest(recipient *models.Account, ns []*models.Notification, cadence types.EmailFrequency) (*Email, error) {
	if len(ns) == 0 {
		return nil, fmt.Errorf("digest requires at least one notification")
	}
	items := make([]item, 0, len(ns))
	for _, n := range ns {
		items = append(items, r.item(n))
	}
	html, err := r.execute(page{
		Name:         displayName(recipient),
		Digest:       true,
		Cadence:      string(cadence),
		Items:        items,
		SettingsLink: r.settingsLink(),
	})
	if err != nil {
		return nil, err
	}
	return &Email{Subject: DigestSubject(len(ns)), HTML: html}, nil
}

// DigestSubject returns the subject line of a digest with n notifications
func DigestSubject(n int) string {
	if n == 1 {
		return "1 new notification"
	}
	return fmt.Sprintf("%d new notifications", n)
}

func (r *Renderer) item(n *models.Notification) item {
	var params map[string]string
	if n.Params != nil {
		params = n.Params.Values()
	}
	it := item{
		Title:   Translate(n.TitleKey(), params),
		Message: Translate(n.MessageKey(), params),
	}
	if r.baseURL != "" && n.PageID != nil {
		it.Link = r.baseURL + "/pages/" + *n.PageID
		if n.CommentID != nil {
			it.Link += "#comment-" + *n.CommentID
		}
	}
	return it
}

func (r *Renderer) settingsLink() string {
	if r.baseURL == "" {
		return ""
	}
	return r.baseURL + "/settings/notifications"
}

func (r *Renderer) execute(p page) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}

func displayName(a *models.Account) string {
	if a == nil {
		return "there"
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}
