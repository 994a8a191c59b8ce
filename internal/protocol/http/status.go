package http

const (
	StatusUnset      = -1
	StatusOK         = 200
	StatusBadRequest = 400
	StatusForbidden  = 403
	StatusNotFound   = 404
)

var statusText = map[int]string{
	StatusOK:         "OK",
	StatusBadRequest: "Bad Request",
	StatusForbidden:  "Forbidden",
	StatusNotFound:   "Not Found",
}

// errorPages are the canned pages served in place of the requested path.
var errorPages = map[int]string{
	StatusBadRequest: "/400.html",
	StatusForbidden:  "/403.html",
	StatusNotFound:   "/404.html",
}

// StatusText returns the reason phrase for code and whether code is known.
func StatusText(code int) (string, bool) {
	text, ok := statusText[code]
	return text, ok
}
