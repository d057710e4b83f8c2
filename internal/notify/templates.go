package notify

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	texttmpl "text/template"
)

// Email is a rendered message ready for a transport.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

const credentialsText = `Bonjour {{.StudentName}},

Votre inscription est désormais active.

Matricule : {{.Matricule}}
Identifiant : {{.Username}}
Mot de passe : {{.Password}}

Connectez-vous sur {{.LoginURL}} et changez votre mot de passe dès la première connexion.
Suivi de votre dossier : {{.PublicURL}}
`

const credentialsHTML = `<p>Bonjour {{.StudentName}},</p>
<p>Votre inscription est désormais active.</p>
<ul>
<li>Matricule : <strong>{{.Matricule}}</strong></li>
<li>Identifiant : <strong>{{.Username}}</strong></li>
<li>Mot de passe : <strong>{{.Password}}</strong></li>
</ul>
<p><a href="{{.LoginURL}}">Connectez-vous</a> et changez votre mot de passe dès la première connexion.</p>
<p><a href="{{.PublicURL}}">Suivi de votre dossier</a></p>
`

const confirmationText = `Bonjour {{.StudentName}},

Nous avons bien reçu votre paiement de {{.Amount.StringFixed 0}} FCFA pour « {{.FeeLabel}} ».
{{if .ReceiptReference}}Reçu : {{.ReceiptReference}}
{{end}}Reste à payer : {{.Remaining.StringFixed 0}} FCFA

Suivi de votre dossier : {{.PublicURL}}
`

const confirmationHTML = `<p>Bonjour {{.StudentName}},</p>
<p>Nous avons bien reçu votre paiement de <strong>{{.Amount.StringFixed 0}} FCFA</strong> pour « {{.FeeLabel}} ».</p>
{{if .ReceiptReference}}<p>Reçu : {{.ReceiptReference}}</p>
{{end}}<p>Reste à payer : {{.Remaining.StringFixed 0}} FCFA</p>
<p><a href="{{.PublicURL}}">Suivi de votre dossier</a></p>
`

var (
	credentialsTextTmpl  = texttmpl.Must(texttmpl.New("credentials").Parse(credentialsText))
	credentialsHTMLTmpl  = htmltmpl.Must(htmltmpl.New("credentials").Parse(credentialsHTML))
	confirmationTextTmpl = texttmpl.Must(texttmpl.New("confirmation").Parse(confirmationText))
	confirmationHTMLTmpl = htmltmpl.Must(htmltmpl.New("confirmation").Parse(confirmationHTML))
)

// RenderCredentials builds the account activation email.
func RenderCredentials(msg CredentialsMessage) (Email, error) {
	return render(msg.To, "Votre inscription est active", credentialsTextTmpl, credentialsHTMLTmpl, msg)
}

// RenderConfirmation builds the payment acknowledgement email.
func RenderConfirmation(msg ConfirmationMessage) (Email, error) {
	return render(msg.To, "Paiement reçu", confirmationTextTmpl, confirmationHTMLTmpl, msg)
}

func render(to, subject string, text *texttmpl.Template, html *htmltmpl.Template, data any) (Email, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return Email{}, fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	if err := html.Execute(&hb, data); err != nil {
		return Email{}, fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	return Email{To: to, Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}
