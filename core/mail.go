package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

const emailTemplatesDir = "templates/email"

// registry of the parsed email templates, swapped as a whole by ParseEmailTemplates
var emailTemplates struct {
	sync.RWMutex
	byName          map[string]emailTemplate
	appName         string
	frontendBaseURL string
}

type (
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	executor interface {
		Execute(w io.Writer, data interface{}) error
	}

	Attachment struct {
		Content     *bytes.Buffer // base64
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text, overrides the text template
		Attachments []Attachment

		TemplateName string // file name under templates/email, without extension
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is the root object of every email template.
	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// NewTemplateEmail returns a message to a single recipient rendered from the named template.
func NewTemplateEmail(to mail.Address, subject, template string, data interface{}) *EmailMessage {
	return &EmailMessage{
		To:           []mail.Address{to},
		Subject:      subject,
		TemplateName: template,
		TemplateData: data,
	}
}

// Render fills TextContent & HTMLContent. Unknown templates render nothing.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	emailTemplates.RLock()
	tmpl, ok := emailTemplates.byName[m.TemplateName]
	data := ContextData{
		AppName:         emailTemplates.appName,
		FrontendBaseURL: emailTemplates.frontendBaseURL,
		Data:            m.TemplateData,
	}
	emailTemplates.RUnlock()
	if !ok {
		return nil
	}

	var err error
	if tmpl.text != nil && m.BodyStr == "" {
		if m.TextContent, err = execute(tmpl.text, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
	}
	if tmpl.html != nil {
		if m.HTMLContent, err = execute(tmpl.html, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
	}
	return nil
}

func execute(t executor, data ContextData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Attach adds the content of r as a base64 encoded attachment.
// The content type is sniffed when ct is omitted.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading attachment")
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer), ContentType: http.DetectContentType(content)}
	if len(ct) > 0 {
		at.ContentType = ct[0]
	}
	enc := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := enc.Write(content); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates parses the `.txt` & `.gohtml` templates of fsys's `templates/email`.
// Each one is parsed along with the `_base` file of its extension.
// Templates failing to parse are logged & skipped.
func ParseEmailTemplates(conf *Config, fsys fs.FS, logger Logger) {
	files, err := fs.Glob(fsys, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
		return
	}
	missingKey := "missingkey=default"
	if conf.Debug || conf.TestMode {
		missingKey = "missingkey=error"
	}

	parsed := make(map[string]emailTemplate)
	for _, fp := range files {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		base := path.Join(emailTemplatesDir, "_base"+ext)
		name := strings.TrimSuffix(fname, ext)
		tmpl := parsed[name]

		switch ext {
		case ".txt":
			tmpl.text, err = texttmpl.ParseFS(fsys, base, fp)
			if err == nil {
				tmpl.text = tmpl.text.Option(missingKey)
			}
		case ".gohtml":
			tmpl.html, err = htmltmpl.ParseFS(fsys, base, fp)
			if err == nil {
				tmpl.html = tmpl.html.Option(missingKey)
			}
		default:
			continue
		}
		if err != nil {
			logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fname, err), err)
			continue
		}
		parsed[name] = tmpl
	}

	emailTemplates.Lock()
	emailTemplates.byName = parsed
	emailTemplates.appName = conf.AppName
	emailTemplates.frontendBaseURL = conf.FrontendBaseURL
	emailTemplates.Unlock()
}
