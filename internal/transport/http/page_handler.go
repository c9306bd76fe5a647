package http

import (
	"html/template"
	"log/slog"
	"net/http"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Language}}">
<head>
    <meta charset="utf-8">
    <title>langworker: {{.Language}} {{.Kind}}</title>
    <style>
        body { font-family: sans-serif; margin: 40px; max-width: 48em; }
        textarea { width: 100%; min-height: 8em; }
    </style>
</head>
<body>
    <h1>Language: {{.Language}}</h1>
    <p>Loaded {{.Kind}} archive. Submit text to check it.</p>
    <form method="post" action="/">
        <textarea name="text" placeholder="Text to check"></textarea>
        <p><button type="submit">Check</button></p>
    </form>
    <p><a href="/health">Health</a> | <a href="/version">Version</a></p>
</body>
</html>
`))

type pageData struct {
	Language string
	Kind     string
}

// Page serves the HTML test page naming the loaded language
func (h *CheckHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{Language: h.service.Language(), Kind: string(h.service.Kind())}
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render page", slog.String("error", err.Error()))
	}
}
