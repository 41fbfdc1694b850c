package compliance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// redactedSubstrings are matched against normalized field names (lowercased,
// separators removed) anywhere in the response body. Matching by substring
// catches variants like patientSSN, internal_notes, financialAccountId.
var redactedSubstrings = []string{
	"ssn",
	"socialsecurity",
	"internalnote",
	"financial",
	"creditcard",
}

func fieldRedacted(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, denied := range redactedSubstrings {
		if strings.Contains(normalized, denied) {
			return true
		}
	}
	return false
}

// RedactJSON removes denied fields from a JSON document, recursing through
// objects and arrays. Non-JSON input comes back unchanged: redaction must
// never corrupt a payload it cannot parse.
func RedactJSON(body []byte) []byte {
	if len(bytes.TrimSpace(body)) == 0 {
		return body
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}
	doc = redactValue(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for key, val := range t {
			if fieldRedacted(key) {
				delete(t, key)
				continue
			}
			t[key] = redactValue(val)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = redactValue(item)
		}
		return t
	default:
		return v
	}
}

// bufferWriter captures the handler's response so the body can be
// transformed before anything reaches the wire. Headers pass through to the
// real writer's header map; status and body are held back.
type bufferWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferWriter) WriteHeader(code int) { w.status = code }

func (w *bufferWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

// withRedaction runs the handler with a buffered response and redacts JSON
// bodies for roles outside the allow list. Allow-listed roles get the
// handler's bytes untouched.
func (p *Pipeline) withRedaction(c echo.Context, role string, next echo.HandlerFunc) error {
	if p.allowRoles[strings.ToLower(role)] {
		return next(c)
	}

	res := c.Response()
	orig := res.Writer
	bw := &bufferWriter{ResponseWriter: orig}
	res.Writer = bw

	err := next(c)
	res.Writer = orig

	if err != nil {
		// The error handler writes its own body through the real writer.
		return err
	}
	if bw.buf.Len() == 0 && bw.status == 0 {
		return nil
	}

	body := bw.buf.Bytes()
	if ct := res.Header().Get(echo.HeaderContentType); strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		body = RedactJSON(body)
	}

	status := bw.status
	if status == 0 {
		status = http.StatusOK
	}
	res.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
	orig.WriteHeader(status)
	if len(body) > 0 {
		if _, werr := orig.Write(body); werr != nil {
			return werr
		}
	}
	return nil
}
