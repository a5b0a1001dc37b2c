package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"zarigaas/internal/domain/entity"
)

var emailTemplate = template.Must(template.New("email").Parse(`
<h2>{{.Heading}}</h2>
<p><strong>From:</strong> {{.From}}</p>
{{if .Offer}}<p><strong>Offer:</strong> {{.Offer}}</p>{{end}}
{{if .Body}}<p><strong>Message:</strong></p>
<p>{{.Body}}</p>{{end}}
{{if .ImageURL}}<p><strong>Attached Image:</strong></p>
<img src="{{.ImageURL}}" alt="Attached image" style="max-width: 300px;" />{{end}}
{{if .Product}}<p><strong>Referenced Product:</strong></p>
<div style="margin-top: 10px; padding: 10px; background-color: #f5f5f5; border-radius: 4px;">
  <p><strong>{{.Product.Name}}</strong></p>
  {{if .Product.ImageURL}}<img src="{{.Product.ImageURL}}" alt="{{.Product.Name}}" style="max-width: 200px;" />{{end}}
</div>{{end}}
<p style="margin-top: 20px;">
  <a href="{{.Link}}" style="background-color: #4F46E5; color: white; padding: 10px 20px; text-decoration: none; border-radius: 4px;">{{.LinkLabel}}</a>
</p>
`))

type emailView struct {
	Heading   string
	From      string
	Offer     string
	Body      string
	ImageURL  string
	Product   *entity.Product
	Link      string
	LinkLabel string
}

func adminLink(websiteURL, tab, key, id string) string {
	q := url.Values{}
	q.Set("tab", tab)
	q.Set(key, id)
	return strings.TrimRight(websiteURL, "/") + "/admin?" + q.Encode()
}

func render(view emailView) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func pitchEmail(websiteURL string, p entity.Pitch, product *entity.Product, to []string) (Email, error) {
	from := p.Email
	if p.Name != "" {
		from = strings.TrimSpace(p.Name + " " + wrap(p.Email))
	}
	if from == "" {
		from = p.AuthorUserID
	}
	view := emailView{
		Heading:   "New Enquiry Received",
		From:      from,
		Body:      p.Message,
		Product:   product,
		Link:      adminLink(websiteURL, "pitches", "pitch", p.ID),
		LinkLabel: "View Enquiry",
	}
	if p.ProposedPrice != nil {
		view.Offer = fmt.Sprintf("₹%.2f", *p.ProposedPrice)
	}
	html, err := render(view)
	if err != nil {
		return Email{}, err
	}
	subject := "New enquiry"
	if p.ProductName != "" {
		subject += " for " + p.ProductName
	}
	return Email{To: to, Subject: subject, HTML: html}, nil
}

func messageEmail(websiteURL string, m entity.Message, senderEmail string, product *entity.Product, to []string) (Email, error) {
	from := senderEmail
	if from == "" {
		from = m.SenderID
	}
	html, err := render(emailView{
		Heading:   "New Message Received",
		From:      from,
		Body:      m.Text,
		ImageURL:  m.ImageURL,
		Product:   product,
		Link:      adminLink(websiteURL, "messages", "message", m.ID),
		LinkLabel: "View Message",
	})
	if err != nil {
		return Email{}, err
	}
	return Email{To: to, Subject: "New Message from " + from, HTML: html}, nil
}

func wrap(email string) string {
	if email == "" {
		return ""
	}
	return "<" + email + ">"
}
