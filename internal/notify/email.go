package notify

import (
	"bytes"
	"html/template"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2 style="font-size: 18px;">{{.Title}}</h2>
<p style="white-space: pre-line;">{{.Message}}</p>
{{- if .ActionURL}}
<p><a href="{{.ActionURL}}" style="color: #2563eb;">View details</a></p>
{{- end}}
</body>
</html>
`))

type emailView struct {
	Title     string
	Message   string
	ActionURL string
}

// renderEmailHTML wraps message in the minimal HTML shell. Values are escaped.
func renderEmailHTML(title, message, actionURL string) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, emailView{Title: title, Message: message, ActionURL: actionURL}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
