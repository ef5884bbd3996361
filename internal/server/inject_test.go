package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectReloadScript(t *testing.T) {
	tag := string(reloadTag)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "before closing body",
			doc:  "<html><body><p>x</p></body></html>",
			want: "<html><body><p>x</p>" + tag + "</body></html>",
		},
		{
			name: "uppercase tags",
			doc:  "<HTML><BODY>x</BODY></HTML>",
			want: "<HTML><BODY>x" + tag + "</BODY></HTML>",
		},
		{
			name: "no body falls back to html",
			doc:  "<html><p>x</p></html>",
			want: "<html><p>x</p>" + tag + "</html>",
		},
		{
			name: "fragment gets appended",
			doc:  "<p>x</p>",
			want: "<p>x</p>" + tag,
		},
		{
			name: "empty document",
			doc:  "",
			want: tag,
		},
		{
			name: "closing tag inside a script is ignored",
			doc:  "<body><script>var s = \"</body>\";</script></body>",
			want: "<body><script>var s = \"</body>\";</script>" + tag + "</body>",
		},
		{
			name: "closing tag inside a comment is ignored",
			doc:  "<body><!-- </body> --></body>",
			want: "<body><!-- </body> -->" + tag + "</body>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(injectReloadScript([]byte(tt.doc))))
		})
	}
}

func TestInjectReloadLeavesOtherResponsesAlone(t *testing.T) {
	h := injectReload(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"a":1}`))
		case "/partial.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("<body>"))
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<body></body>"))
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data.json", nil))
	assert.Equal(t, `{"a":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/partial.html", nil))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "<body>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page.html", nil))
	assert.Equal(t, "<body>"+string(reloadTag)+"</body>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/page.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
