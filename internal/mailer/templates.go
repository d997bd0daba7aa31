package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var (
	reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>Informe de su consulta</h2>
<p>Hola {{.PatientName}},</p>
<p>El Dr./Dra. {{.DoctorName}} de {{.OrganizationName}} ha compartido el informe de su consulta.</p>
<p><a href="{{.ReportURL}}" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:6px;text-decoration:none;">Ver informe</a></p>
<p style="font-size:12px;color:#6b7280;">Si el botón no funciona copie este enlace en su navegador: {{.ReportURL}}</p>
</body></html>`))

	invitationTmpl = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>Cree su cuenta de paciente</h2>
<p>Hola {{.PatientName}},</p>
<p>{{.OrganizationName}} le invita a crear una cuenta para consultar sus informes y citas en línea.</p>
<p><a href="{{.SignupURL}}">Crear mi cuenta</a></p>
</body></html>`))

	notificationTmpl = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #1f2933;">
<h3>{{.Title}}</h3>
<p>{{.Message}}</p>
</body></html>`))
)

type ReportData struct {
	PatientName      string
	DoctorName       string
	OrganizationName string
	ReportURL        string
}

type InvitationData struct {
	PatientName      string
	OrganizationName string
	SignupURL        string
}

type NotificationData struct {
	Title   string
	Message string
}

func ReportEmail(to string, d ReportData) (Message, error) {
	body, err := render(reportTmpl, d)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Su informe de consulta está disponible", HTMLBody: body, Kind: KindConsultationReport}, nil
}

func InvitationEmail(to string, d InvitationData) (Message, error) {
	body, err := render(invitationTmpl, d)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("%s le invita a registrarse", d.OrganizationName), HTMLBody: body, Kind: KindPatientInvitation}, nil
}

func NotificationEmail(to string, d NotificationData) (Message, error) {
	body, err := render(notificationTmpl, d)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: d.Title, HTMLBody: body, Kind: KindNotification}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
