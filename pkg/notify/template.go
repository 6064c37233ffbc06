package notify

import (
	"html/template"
	"strings"
)

type otpEmailData struct {
	Code    string
	AppName string
}

var otpEmailTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  {{if .AppName}}<p>You are signing in to <strong>{{.AppName}}</strong>.</p>{{end}}
  <p>Your verification code is:</p>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>The code expires in 10 minutes. If you did not request it, ignore this email.</p>
</body>
</html>`))

func renderOTPEmail(data otpEmailData) (string, error) {
	var b strings.Builder
	if err := otpEmailTemplate.Execute(&b, data); err != nil {
		return "", ErrRegistry.NewWithCause(CodeTemplateFailed, err)
	}
	return b.String(), nil
}
