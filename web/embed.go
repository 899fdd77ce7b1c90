package web

import (
	"embed"
	"io/fs"
)

// TemplatesFS embeds HTML templates for server-side rendering.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets.
//
//go:embed static/*
var StaticFS embed.FS

// Templates returns the template files rooted at their directory.
func Templates() fs.FS {
	sub, err := fs.Sub(TemplatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Static returns the static assets rooted at their directory.
func Static() fs.FS {
	sub, err := fs.Sub(StaticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
