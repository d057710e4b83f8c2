package receipt

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

const receiptHTML = `<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><title>Reçu {{.Reference}}</title></head>
<body>
<h1>{{.Institution}}</h1>
<h2>Reçu de paiement n° {{.Reference}}</h2>
<p>Émis le {{.IssuedAt.Format "02/01/2006 15:04"}}</p>
<table>
<tr><th>Candidat</th><td>{{.CandidateName}}</td></tr>
{{if .Matricule}}<tr><th>Matricule</th><td>{{.Matricule}}</td></tr>
{{end}}<tr><th>Filière</th><td>{{.Programme}}</td></tr>
<tr><th>Année académique</th><td>{{.AcademicYear}}</td></tr>
<tr><th>Frais</th><td>{{.FeeLabel}}</td></tr>
<tr><th>Montant</th><td>{{.Amount.StringFixed 0}} FCFA</td></tr>
<tr><th>Mode de paiement</th><td>{{.Method}}</td></tr>
{{if .PaymentReference}}<tr><th>Référence</th><td>{{.PaymentReference}}</td></tr>
{{end}}<tr><th>Reste à payer</th><td>{{.Remaining.StringFixed 0}} FCFA</td></tr>
</table>
{{if .VerificationURL}}<p>Vérification : <a href="{{.VerificationURL}}">{{.VerificationURL}}</a></p>
{{end}}</body>
</html>
`

// HTMLRenderer renders a printable HTML receipt.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{tmpl: template.Must(template.New("receipt").Parse(receiptHTML))}
}

func (r *HTMLRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.Reference == "" {
		return nil, fmt.Errorf("render receipt: missing reference")
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", doc.Reference, err)
	}
	return buf.Bytes(), nil
}
