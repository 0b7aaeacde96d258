package page

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	headMarker  = "<head>"
	bootstrapID = "zapic-bootstrap"
)

// NativeInterface is the global object the host exposes to page scripts.
// Its dispatch(json) method is the single web-to-native entry point.
const NativeInterface = "androidWebView"

// Bootstrap holds the values the injected script exposes to the web app.
type Bootstrap struct {
	Environment     string
	Version         string
	PackageName     string
	InstallationID  string
	WatchdogTimeout time.Duration
}

// Script renders the bootstrap <script> element.
//
// The script defines window.zapic. The web app calls
// window.zapic.onLoaded(action$, publishAction) once it is running: the host
// then forwards every action emitted on action$ to the native interface, and
// native messages reach the app through window.zapic.dispatch, which is wired
// to publishAction. If onLoaded is not called before the watchdog fires, an
// APP_FAILED message is sent to the host instead.
func (b Bootstrap) Script() string {
	timeout := b.WatchdogTimeout.Milliseconds()
	if timeout <= 0 {
		timeout = 10000
	}

	var sb strings.Builder
	sb.WriteString(`<script id="` + bootstrapID + `">`)
	sb.WriteString(`(function () {`)
	sb.WriteString(`function send(action) { window.` + NativeInterface + `.dispatch(JSON.stringify(action)); }`)
	sb.WriteString(`var watchdog = setTimeout(function () { send({ type: "APP_FAILED" }); }, ` + strconv.FormatInt(timeout, 10) + `);`)
	sb.WriteString(`window.zapic = {`)
	sb.WriteString(`environment: ` + jsString(b.Environment) + `, `)
	sb.WriteString(`version: ` + jsString(b.Version) + `, `)
	sb.WriteString(`packageName: ` + jsString(b.PackageName) + `, `)
	sb.WriteString(`installationId: ` + jsString(b.InstallationID) + `, `)
	sb.WriteString(`onLoaded: function (action$, publishAction) {`)
	sb.WriteString(`clearTimeout(watchdog);`)
	sb.WriteString(`window.zapic.dispatch = function (action) { publishAction(action); };`)
	sb.WriteString(`action$.subscribe(function (action) { send(action); });`)
	sb.WriteString(`}`)
	sb.WriteString(`};`)
	sb.WriteString(`})();`)
	sb.WriteString(`</script>`)
	return sb.String()
}

// Inject returns a copy of p with the bootstrap script inserted right after
// the first <head> tag. Pages without a <head> tag, and pages that already
// carry the bootstrap, are returned unchanged.
func Inject(p *CachedPage, b Bootstrap) *CachedPage {
	if p == nil {
		return nil
	}

	idx := strings.Index(p.HTML, headMarker)
	if idx < 0 || strings.Contains(p.HTML, `id="`+bootstrapID+`"`) {
		return p
	}

	at := idx + len(headMarker)
	injected := p.clone()
	injected.HTML = p.HTML[:at] + b.Script() + p.HTML[at:]
	return injected
}

// jsString encodes s as a JavaScript string literal safe inside <script>.
func jsString(s string) string {
	out, err := sonic.ConfigStd.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return out
}

