package delivery

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
)

var (
	securityCodeText = texttemplate.Must(texttemplate.New("security_code").Parse(
		`Your security code for {{.Identity}} is {{.Code}}.

Enter this code to verify your recovery method. It expires in {{.Validity}}.
If you did not request it, you can ignore this message.`))

	confirmRequestText = texttemplate.Must(texttemplate.New("confirm_request").Parse(
		`Your account {{.AccountID}} wants to confirm a request: {{.Request}}
{{range .Details}}
  - {{.}}{{end}}

The confirmation code is {{.Code}}. It expires in {{.Validity}}.
Only enter it if you initiated this request.`))

	confirmRequestHTML = htmltemplate.Must(htmltemplate.New("confirm_request_html").Parse(
		`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Your account <strong>{{.AccountID}}</strong> wants to confirm a request:</p>
<p>{{.Request}}</p>
{{if .Details}}<ul>{{range .Details}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p>The confirmation code is</p>
<p style="font-size:28px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>It expires in {{.Validity}}. Only enter it if you initiated this request.</p>
</body></html>`))

	securityCodeHTML = htmltemplate.Must(htmltemplate.New("security_code_html").Parse(
		`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Your security code for <strong>{{.Identity}}</strong> is</p>
<p style="font-size:28px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>It expires in {{.Validity}}. If you did not request it, you can ignore this message.</p>
</body></html>`))
)

type securityCodeData struct {
	Identity string
	Code     string
	Validity string
}

type confirmRequestData struct {
	AccountID string
	Request   string
	Details   []string
	Code      string
	Validity  string
}

// SecurityCodeMessage renders the recovery-method verification message.
func SecurityCodeMessage(identity, code, validity string) (domain.Message, error) {
	data := securityCodeData{Identity: identity, Code: code, Validity: validity}
	text, err := renderText(securityCodeText, data)
	if err != nil {
		return domain.Message{}, err
	}
	html, err := renderHTML(securityCodeHTML, data)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Subject: fmt.Sprintf("Your security code for %s", identity),
		Text:    text,
		HTML:    html,
	}, nil
}

// ConfirmRequestMessage renders the second-factor message for a pending request.
// details lists one line per backend action, when known.
func ConfirmRequestMessage(accountID, request string, details []string, code, validity string) (domain.Message, error) {
	data := confirmRequestData{
		AccountID: accountID,
		Request:   request,
		Details:   details,
		Code:      code,
		Validity:  validity,
	}
	text, err := renderText(confirmRequestText, data)
	if err != nil {
		return domain.Message{}, err
	}
	html, err := renderHTML(confirmRequestHTML, data)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Subject: fmt.Sprintf("Your account %s wants to confirm a request", accountID),
		Text:    text,
		HTML:    html,
	}, nil
}

// RequestDetails describes each backend action on its own line.
func RequestDetails(req *domain.MultisigRequest) []string {
	if req == nil {
		return nil
	}
	out := make([]string, 0, len(req.Actions))
	for _, a := range req.Actions {
		line := strings.ReplaceAll(a.Type, "_", " ")
		if req.ReceiverID != "" {
			line += " on " + req.ReceiverID
		}
		out = append(out, line)
	}
	return out
}

func renderText(t *texttemplate.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func renderHTML(t *htmltemplate.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Validity renders a code's lifetime for message bodies, e.g. "10 minutes".
func Validity(ttl time.Duration) string {
	m := int(ttl.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return strconv.Itoa(m) + " minutes"
}
