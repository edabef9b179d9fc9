package server

import (
	"html/template"
	"net/http"
)

var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "layout-top"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>{{.AppName}} - {{.Title}}</title></head><body>
<main><h1>{{.Title}}</h1>
{{if .Error}}<p role="alert" class="error">{{.Error}}</p>{{end}}
{{if .Message}}<p role="status" class="message">{{.Message}}</p>{{end}}{{end}}

{{define "layout-bottom"}}</main></body></html>{{end}}

{{define "sign-in"}}{{template "layout-top" .}}
<form method="post" action="/sign-in">
  <input type="hidden" name="redirect" value="{{.Redirect}}">
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
<p><a href="/sign-up">Create an account</a></p>
{{template "layout-bottom" .}}{{end}}

{{define "sign-up"}}{{template "layout-top" .}}
<form method="post" action="/sign-up">
  <label>Name <input type="text" name="name" value="{{.Name}}" required></label>
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <label>Confirm password <input type="password" name="passwordConfirmation" required></label>
  <button type="submit">Sign up</button>
</form>
<p><a href="/sign-in">Already have an account?</a></p>
{{template "layout-bottom" .}}{{end}}

{{define "unauthorized"}}{{template "layout-top" .}}
<p>Your account does not have access to this page.</p>
<p><a href="/">Back to the dashboard</a></p>
{{template "layout-bottom" .}}{{end}}
`))

type pageData struct {
	AppName  string
	Title    string
	Error    string
	Message  string
	Redirect string
	Name     string
	Email    string
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	data.AppName = s.config.GetAppName()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("page", name).Msg("failed to render page")
	}
}
