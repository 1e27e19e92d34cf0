package api

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>{{if .Latest}}{{.Latest}} · {{end}}lectern</title>
<style>
body { font-family: system-ui, sans-serif; background: #111; color: #eee; margin: 2rem; }
h1 { font-size: 1rem; color: #888; text-transform: uppercase; letter-spacing: .1em; }
ol { font-size: 1.6rem; line-height: 1.6; }
li:last-child { font-size: 2.4rem; color: #ffd479; }
p.empty { color: #666; }
</style>
</head>
<body>
<h1>Recent references</h1>
{{if .References}}<ol>
{{range .References}}<li>{{.}}</li>
{{end}}</ol>{{else}}<p class="empty">Listening…</p>{{end}}
</body>
</html>
`
