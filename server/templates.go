package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/go-erp-portal/users"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(name).ParseFS(TemplateFilesFS(), layoutTemplate, name)
}

// mustParseTemplate is used while routes are built; a broken embedded template is a build defect.
func mustParseTemplate(name string) *template.Template {
	tmpl, err := ParseTemplate(name)
	if err != nil {
		panic("Failed to parse " + name + " template: " + err.Error())
	}
	return tmpl
}

// PageData is what every page template receives.
type PageData struct {
	AppName    string
	Title      string
	User       *users.UserProfile
	Error      string
	Message    string
	Username   string
	Visible    bool
	SSOEnabled bool
	Links      []PageLink
}

// PageLink is an entry in the signed-in navigation.
type PageLink struct {
	Path  string
	Title string
}

func (s *Server) pageData(r *http.Request, title string) PageData {
	data := PageData{
		AppName:    s.config.GetAppName(),
		Title:      title,
		Error:      r.URL.Query().Get("error"),
		Message:    r.URL.Query().Get("message"),
		SSOEnabled: s.sso != nil,
		Visible:    true,
	}
	if ctrl := controllerFrom(r); ctrl != nil {
		data.User = ctrl.State().User
	}
	data.Links = linksFor(data.User)
	return data
}

func linksFor(u *users.UserProfile) []PageLink {
	if u == nil {
		return nil
	}
	links := []PageLink{}
	for _, sec := range sections {
		if len(sec.roles) == 0 || u.HasAnyRole(sec.roles...) {
			links = append(links, PageLink{Path: sec.path, Title: sec.title})
		}
	}
	return links
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, layoutTemplate, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("[render] failed to execute template")
	}
}
