package admin

import (
	"html/template"
)

// Pages share a single layout; each page defines a "content" block.
const layoutTmpl = `<!DOCTYPE html>
<html>
<head>
<title>MQTT Alert Bridge</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
nav a { margin-right: 1em; }
.error { color: #b00; }
.disabled { color: #999; }
form.inline { display: inline; }
</style>
</head>
<body>
<nav>
<a href="/rules">Rules</a>
<a href="/settings">Settings</a>
<a href="/history">History</a>
<a href="/topics">Topics</a>
</nav>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{template "content" .}}
</body>
</html>`

const rulesTmpl = `{{define "content"}}
<h1>Alert Rules</h1>
<table>
<tr><th>ID</th><th>Topic</th><th>Condition</th><th>Message</th><th>Limit</th><th>Status</th><th></th></tr>
{{range .Rules}}
<tr{{if not .Enabled}} class="disabled"{{end}}>
<td>{{.ID}}</td>
<td>{{.Topic}}</td>
<td>{{.Direction}} {{.Threshold}}</td>
<td>{{.Message}}</td>
<td>{{.MaxDispatches}} / {{.PeriodSeconds}}s</td>
<td>{{if .Enabled}}enabled{{else}}disabled{{end}}</td>
<td>
<a href="/rules/{{.ID}}/edit">edit</a>
<form class="inline" method="post" action="/rules/{{.ID}}/{{if .Enabled}}disable{{else}}enable{{end}}"><button>{{if .Enabled}}disable{{else}}enable{{end}}</button></form>
<form class="inline" method="post" action="/rules/{{.ID}}/delete"><button>delete</button></form>
</td>
</tr>
{{end}}
</table>
<h2>Add Rule</h2>
<form method="post" action="/rules">
<p><label>Topic <input name="topic" value="{{.Form.Topic}}"></label></p>
<p><label>Direction
<select name="direction">
<option value="above"{{if eq .Form.Direction "above"}} selected{{end}}>above</option>
<option value="below"{{if eq .Form.Direction "below"}} selected{{end}}>below</option>
</select></label></p>
<p><label>Threshold <input name="threshold" value="{{.Form.Threshold}}"></label></p>
<p><label>Message <input name="message" size="60" value="{{.Form.Message}}" placeholder="Value {value} crossed {threshold}"></label></p>
<p><label>Max dispatches <input name="max_dispatches" value="{{.Form.MaxDispatches}}"></label></p>
<p><label>Period (seconds) <input name="period_seconds" value="{{.Form.PeriodSeconds}}"></label></p>
<p><button>Create</button></p>
</form>
{{end}}`

const ruleEditTmpl = `{{define "content"}}
<h1>Edit Rule {{.Rule.ID}}</h1>
<form method="post" action="/rules/{{.Rule.ID}}">
<p><label>Topic <input name="topic" value="{{.Form.Topic}}"></label></p>
<p><label>Direction
<select name="direction">
<option value="above"{{if eq .Form.Direction "above"}} selected{{end}}>above</option>
<option value="below"{{if eq .Form.Direction "below"}} selected{{end}}>below</option>
</select></label></p>
<p><label>Threshold <input name="threshold" value="{{.Form.Threshold}}"></label></p>
<p><label>Message <input name="message" size="60" value="{{.Form.Message}}"></label></p>
<p><label>Max dispatches <input name="max_dispatches" value="{{.Form.MaxDispatches}}"></label></p>
<p><label>Period (seconds) <input name="period_seconds" value="{{.Form.PeriodSeconds}}"></label></p>
<p><button>Save</button> <a href="/rules">cancel</a></p>
</form>
{{end}}`

const settingsTmpl = `{{define "content"}}
<h1>Settings</h1>
<p>Values stored here override the config file after restart.</p>
<form method="post" action="/settings">
{{range .Keys}}
<p><label>{{.}} <input name="{{.}}" size="50" value="{{index $.Settings .}}"></label></p>
{{end}}
<p><button>Save</button></p>
</form>
{{end}}`

const historyTmpl = `{{define "content"}}
<h1>Dispatch History</h1>
<table>
<tr><th>Time</th><th>Rule</th><th>Topic</th><th>Message</th></tr>
{{range .Entries}}
<tr>
<td>{{.Time}}</td>
<td>{{.RuleID}}</td>
<td>{{if .Topic}}{{.Topic}}{{else}}(deleted){{end}}</td>
<td>{{.Message}}</td>
</tr>
{{end}}
</table>
{{end}}`

const topicsTmpl = `{{define "content"}}
<h1>Seen Topics</h1>
<table>
<tr><th>Topic</th><th>Last seen</th><th>Friendly name</th></tr>
{{range .Topics}}
<tr>
<td>{{.Topic}}</td>
<td>{{.LastSeen}}</td>
<td>
<form class="inline" method="post" action="/topics/name">
<input type="hidden" name="topic" value="{{.Topic}}">
<input name="name" value="{{.FriendlyName}}">
<button>set</button>
</form>
</td>
</tr>
{{end}}
</table>
{{end}}`

var (
	rulesPage    = template.Must(template.New("rules").Parse(layoutTmpl + rulesTmpl))
	ruleEditPage = template.Must(template.New("edit").Parse(layoutTmpl + ruleEditTmpl))
	settingsPage = template.Must(template.New("settings").Parse(layoutTmpl + settingsTmpl))
	historyPage  = template.Must(template.New("history").Parse(layoutTmpl + historyTmpl))
	topicsPage   = template.Must(template.New("topics").Parse(layoutTmpl + topicsTmpl))
)
