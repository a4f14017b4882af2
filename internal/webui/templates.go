package webui

import (
	"html/template"
)

// Templates contains the HTML templates for the dashboard
var Templates = template.Must(template.New("").Funcs(template.FuncMap{
	"levelClass": LevelClass,
	"stateClass": StateClass,
}).Parse(`
{{define "base"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="{{.RefreshSeconds}}">
    <title>weatherd - {{.Sensor}}</title>
    <style>
        :root {
            --bg-primary: #0d1117;
            --bg-secondary: #161b22;
            --bg-tertiary: #21262d;
            --border-color: #30363d;
            --text-primary: #e6edf3;
            --text-secondary: #8b949e;
            --text-muted: #6e7681;
            --accent-green: #3fb950;
            --accent-red: #f85149;
            --accent-yellow: #d29922;
            --accent-blue: #58a6ff;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.6;
        }
        .container { max-width: 1100px; margin: 0 auto; padding: 2rem; }
        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 2rem;
            padding-bottom: 1.5rem;
            border-bottom: 1px solid var(--border-color);
        }
        h1 { font-size: 1.75rem; font-weight: 600; }
        .muted { font-size: 0.75rem; color: var(--text-muted); }
        .badge {
            padding: 0.4rem 1rem;
            border-radius: 20px;
            border: 1px solid var(--border-color);
            background: var(--bg-secondary);
            text-transform: uppercase;
            font-size: 0.8rem;
            font-weight: 600;
        }
        .state-normal { color: var(--accent-green); }
        .state-warning { color: var(--accent-yellow); }
        .state-alarm, .state-failure { color: var(--accent-red); }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(4, 1fr);
            gap: 1rem;
            margin-bottom: 1.5rem;
        }
        .stat-card, .card {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 12px;
        }
        .stat-card { padding: 1.25rem; }
        .stat-label { font-size: 0.8rem; color: var(--text-secondary); }
        .stat-value { font-size: 1.6rem; font-weight: 600; color: var(--accent-blue); }
        .card { margin-bottom: 1.5rem; overflow: hidden; }
        .card-header {
            padding: 0.75rem 1.25rem;
            background: var(--bg-tertiary);
            border-bottom: 1px solid var(--border-color);
            font-weight: 600;
        }
        .config-row {
            display: flex;
            justify-content: space-between;
            padding: 0.5rem 1.25rem;
            border-bottom: 1px solid var(--border-color);
        }
        .config-key { color: var(--text-secondary); }
        .config-value { font-family: monospace; }
        .log-container { max-height: 420px; overflow-y: auto; font-family: monospace; font-size: 0.8rem; }
        .log-entry { display: flex; gap: 0.75rem; padding: 0.2rem 1.25rem; }
        .log-time { color: var(--text-muted); }
        .log-level { width: 3.5rem; text-transform: uppercase; }
        .log-error .log-level { color: var(--accent-red); }
        .log-warn .log-level { color: var(--accent-yellow); }
        .log-debug .log-level { color: var(--text-muted); }
        .log-info .log-level { color: var(--accent-blue); }
        @media (max-width: 800px) { .stats-grid { grid-template-columns: 1fr 1fr; } }
    </style>
</head>
<body>
    <div class="container">
        {{template "content" .}}
    </div>
</body>
</html>
{{end}}

{{define "content"}}
        <header>
            <div>
                <h1>weatherd</h1>
                <div class="muted">{{.Sensor}} &middot; {{if .Version}}{{.Version}}{{else}}dev{{end}}{{if and .Commit (ne .Commit "unknown")}} ({{.Commit | printf "%.7s"}}){{end}}</div>
            </div>
            <span class="badge {{stateClass .State}}">{{if .State}}{{.State}}{{else}}starting{{end}}</span>
        </header>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Temperature</div>
                <div class="stat-value">{{.Temperature}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Humidity</div>
                <div class="stat-value">{{.Humidity}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Pressure</div>
                <div class="stat-value">{{.Pressure}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Uptime</div>
                <div class="stat-value">{{.Uptime}}</div>
            </div>
        </div>

        <div class="card">
            <div class="card-header">Agent</div>
            <div class="config-row"><span class="config-key">Last tick</span><span class="config-value">{{if .LastTick}}#{{.Seq}} at {{.LastTick}}{{else}}none yet{{end}}</span></div>
            <div class="config-row"><span class="config-key">Sampling interval</span><span class="config-value">{{.Interval}}</span></div>
            <div class="config-row"><span class="config-key">Alert mode</span><span class="config-value">{{.AlertMode}}</span></div>
            <div class="config-row"><span class="config-key">Storage</span><span class="config-value">{{.Backends}}</span></div>
            {{if .LastError}}<div class="config-row"><span class="config-key">Last error</span><span class="config-value state-failure">{{.LastError}}</span></div>{{end}}
        </div>

        <div class="card">
            <div class="card-header">Recent Logs</div>
            <div class="log-container">
                {{range .Logs}}
                <div class="log-entry {{levelClass .Level}}">
                    <span class="log-time">{{.Timestamp.Format "15:04:05"}}</span>
                    <span class="log-level">{{.Level}}</span>
                    <span class="log-message">{{.Message}}</span>
                </div>
                {{end}}
            </div>
        </div>
{{end}}
`))

// LevelClass maps a log level to its CSS class
func LevelClass(level string) string {
	switch level {
	case "error", "fatal", "panic":
		return "log-error"
	case "warn":
		return "log-warn"
	case "debug", "trace":
		return "log-debug"
	default:
		return "log-info"
	}
}

// StateClass maps a classification state to its CSS class
func StateClass(state string) string {
	if state == "" {
		return ""
	}
	return "state-" + state
}
