package server

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"golang.org/x/net/html"
)

// reloadTag is placed into every served HTML page.
var reloadTag = []byte(`<script src="` + ClientScriptPath + `"></script>`)

// injectReloadScript inserts the reload client before the last </body>,
// else before </html>, else at the end of the document.
func injectReloadScript(doc []byte) []byte {
	bodyAt, htmlAt := -1, -1

	z := html.NewTokenizer(bytes.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "body":
				bodyAt = offset
			case "html":
				htmlAt = offset
			}
		}
		offset += raw
	}

	at := len(doc)
	switch {
	case bodyAt >= 0:
		at = bodyAt
	case htmlAt >= 0:
		at = htmlAt
	}

	out := make([]byte, 0, len(doc)+len(reloadTag))
	out = append(out, doc[:at]...)
	out = append(out, reloadTag...)
	out = append(out, doc[at:]...)
	return out
}

// injectReload wraps next so that full HTML responses carry the reload
// client. Other responses pass through untouched.
func injectReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &htmlResponseWriter{ResponseWriter: w, head: r.Method == http.MethodHead}
		next.ServeHTTP(rw, r)
		rw.flush()
	})
}

// htmlResponseWriter buffers a 200 text/html body so it can be rewritten.
type htmlResponseWriter struct {
	http.ResponseWriter
	head        bool
	wroteHeader bool
	buffering   bool
	buf         bytes.Buffer
}

func (w *htmlResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if status == http.StatusOK && isHTML(w.Header().Get("Content-Type")) {
		w.buffering = true
		w.Header().Del("Content-Length")
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *htmlResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return w.buf.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func (w *htmlResponseWriter) flush() {
	if !w.buffering {
		return
	}
	body := injectReloadScript(w.buf.Bytes())
	if !w.head {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.ResponseWriter.WriteHeader(http.StatusOK)
	if !w.head {
		_, _ = w.ResponseWriter.Write(body)
	}
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}
