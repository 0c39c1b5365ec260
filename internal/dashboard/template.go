package dashboard

import (
	"html/template"

	"github.com/cronboard/cronboard/internal/shared/stringutils"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"join":  stringutils.JoinOrDash,
	"short": stringutils.ShortID,
}).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>cronboard{{with .Selected}} · {{.Name}}{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0; display: flex; color: #222; }
nav { width: 260px; padding: 1rem; background: #f4f4f6; min-height: 100vh; }
main { flex: 1; padding: 1rem 2rem; }
nav ul { list-style: none; padding: 0; }
nav li button { background: none; border: none; padding: .25rem 0; cursor: pointer; font-size: 1rem; }
nav li.selected button { font-weight: bold; }
.flash { padding: .5rem 1rem; background: #fff3cd; border: 1px solid #e0c36a; margin-bottom: 1rem; }
.health { font-size: .85rem; margin-bottom: 1rem; }
.health.down { color: #b00020; }
.jobs { list-style: none; padding: 0; }
.job { border: 1px solid #ddd; border-radius: 6px; padding: .6rem .8rem; margin-bottom: .5rem; }
.job .meta { font-size: .85rem; color: #555; }
.badge { display: inline-block; padding: .1rem .5rem; border-radius: 10px; font-size: .8rem; color: #fff; }
.badge-completed { background: #2e7d32; }
.badge-running { background: #f9a825; color: #222; }
.badge-failed { background: #c62828; }
.badge-unknown { background: #9e9e9e; }
form.inline { display: inline; }
fieldset { border: 1px solid #ddd; margin-top: 1rem; }
label { display: block; margin: .3rem 0; }
</style>
</head>
<body>
<nav>
  <h2>Groups</h2>
  <ul>
  {{range .Groups}}
    <li{{if .Selected}} class="selected"{{end}}>
      <form class="inline" method="post" action="/groups/{{.ID}}/select"><button type="submit">{{.Name}}</button></form>
    </li>
  {{end}}
  </ul>
  <form method="post" action="/groups">
    <input name="name" placeholder="new group name">
    <button type="submit">Create group</button>
  </form>
  {{if .Selected}}
  <form method="post" action="/deselect"><button type="submit">Deselect</button></form>
  {{end}}
</nav>
<main>
  {{with .Flash}}<div class="flash">{{.}}</div>{{end}}
  {{if .Health.Checked}}
  <div class="health{{if not .Health.Reachable}} down{{end}}" id="health">
    backend {{if .Health.Reachable}}reachable{{else}}unreachable: {{.Health.LastError}}{{end}}
  </div>
  {{end}}

  {{with .Selected}}
  <h1>{{.Name}} <small>{{short .ID}}</small></h1>
  <form class="inline" method="post" action="/groups/{{.ID}}/execute"><button type="submit">Execute group</button></form>
  {{else}}
  <h1>Select a group</h1>
  {{end}}

  {{if .Selected}}
    {{if .Jobs}}
    <ul class="jobs" id="jobs">
      {{range .Jobs}}
      <li class="job" data-job-id="{{.ID}}">
        <strong>{{.Name}}</strong>
        <span class="badge {{.Badge}}" data-status>{{.Status}}</span>
        <div class="meta">artifact: {{.Artifact}}</div>
        <div class="meta">timings: {{.Timings}}{{with .UpdatedAt}} · updated {{.}}{{end}}</div>
        <div class="meta">depends on: {{join .Dependencies}}</div>
        <div class="meta">children: {{join .Children}}</div>
      </li>
      {{end}}
    </ul>
    {{else}}
    <p>No jobs in this group.</p>
    {{end}}

    <form method="post" action="/groups/{{.Selected.ID}}/jobs">
      <fieldset>
        <legend>Declare job</legend>
        <label>Name <input name="name"></label>
        <label>Artifact URL <input name="artifact" placeholder="https://example.com/Dockerfile"></label>
        <label>Children <input name="children" placeholder="b, c"></label>
        <label>Dependencies <input name="dependencies" placeholder="a"></label>
        <label>Timings <input name="timings" placeholder="RFC3339 time or cron expression"></label>
        <button type="submit">Create job</button>
      </fieldset>
    </form>
  {{end}}
</main>
<script>
(function () {
  var version = {{.Version}};
  var jobIDs = [{{range $i, $j := .Jobs}}{{if $i}},{{end}}{{$j.ID}}{{end}}].join(",");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (ev) {
    var page = JSON.parse(ev.data);
    if (page.version <= version) { return; }
    version = page.version;
    var ids = page.jobs.map(function (j) { return j.id; }).join(",");
    if (ids !== jobIDs) { location.reload(); return; }
    page.jobs.forEach(function (j) {
      var el = document.querySelector('[data-job-id="' + j.id + '"] [data-status]');
      if (el) { el.className = "badge " + j.badge; el.textContent = j.status; }
    });
  };
})();
</script>
</body>
</html>
`
