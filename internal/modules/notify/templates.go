package notify

import (
	"html/template"
	texttemplate "text/template"
)

type pair struct {
	text *texttemplate.Template
	html *template.Template
}

var confirmed = pair{
	text: texttemplate.Must(texttemplate.New("confirmed.txt").Parse(`Hi {{.Name}},

Thanks for your order. Payment has been received for order {{.Number}}.
{{range .Items}}
  {{.Qty}} x {{.Name}}  {{.Total}}{{end}}

Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Tax:      {{.Tax}}
Total:    {{.Total}}
{{if .OrderURL}}
Track your order: {{.OrderURL}}{{else}}
Quote {{.Number}} if you contact us about this order.{{end}}
`)),
	html: template.Must(template.New("confirmed.html").Parse(`<html><body style="font-family: sans-serif;">
<h2>Order {{.Number}} confirmed</h2>
<p>Hi {{.Name}}, thanks for your order. Payment has been received.</p>
<table>
{{range .Items}}<tr><td>{{.Qty}} &times; {{.Name}}</td><td align="right">{{.Total}}</td></tr>
{{end}}<tr><td>Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
<tr><td>Shipping</td><td align="right">{{.Shipping}}</td></tr>
<tr><td>Tax</td><td align="right">{{.Tax}}</td></tr>
<tr><td><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>
{{if .OrderURL}}<p><a href="{{.OrderURL}}">Track your order</a></p>{{else}}<p>Quote {{.Number}} if you contact us about this order.</p>{{end}}
</body></html>
`)),
}

var failed = pair{
	text: texttemplate.Must(texttemplate.New("failed.txt").Parse(`Hi {{.Name}},

We could not take payment for order {{.Number}} ({{.Total}}).{{if .Reason}}
Reason: {{.Reason}}{{end}}

Your order is still open.{{if .OrderURL}} You can try again with another card: {{.OrderURL}}{{else}}
To try again with another card, go back to the checkout page in the browser
you ordered from.{{end}}
`)),
	html: template.Must(template.New("failed.html").Parse(`<html><body style="font-family: sans-serif;">
<h2>Payment did not go through</h2>
<p>Hi {{.Name}}, we could not take payment for order <strong>{{.Number}}</strong> ({{.Total}}).</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>Your order is still open. {{if .OrderURL}}<a href="{{.OrderURL}}">Try again with another card</a>.{{else}}To try again with another card, go back to the checkout page in the browser you ordered from.{{end}}</p>
</body></html>
`)),
}
