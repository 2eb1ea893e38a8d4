package httpmsg

// Status is an HTTP status code. The parser and serializer both work
// against a fixed enumeration; unrecognized codes fall back to
// StatusInternalServerError while the original status text is
// preserved (see httpparse's reply parser).
type Status int

const (
	StatusSwitchingProtocols Status = 101
	StatusOK                 Status = 200
	StatusCreated            Status = 201
	StatusAccepted           Status = 202
	StatusNonAuthoritative   Status = 203
	StatusNoContent          Status = 204
	StatusMultipleChoices    Status = 300
	StatusMovedPermanently   Status = 301
	StatusFound              Status = 302
	StatusSeeOther           Status = 303
	StatusNotModified        Status = 304
	StatusBadRequest         Status = 400
	StatusUnauthorized       Status = 401
	StatusForbidden          Status = 403
	StatusNotFound           Status = 404
	StatusMethodNotAllowed   Status = 405
	StatusRequestTimeout     Status = 408
	StatusConflict           Status = 409
	StatusLengthRequired     Status = 411
	StatusPayloadTooLarge    Status = 413
	StatusURITooLong         Status = 414
	StatusUnsupportedMedia   Status = 415
	StatusTeapot             Status = 418
	StatusUnprocessable      Status = 422
	StatusTooManyRequests    Status = 429
	StatusInternalServerError Status = 500
	StatusNotImplemented     Status = 501
	StatusBadGateway         Status = 502
	StatusServiceUnavailable Status = 503
	StatusGatewayTimeout     Status = 504
)

// statusText is the fixed status-line table.
var statusText = map[Status]string{
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	411: "Length Required",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	418: "I'm a Teapot",
	422: "Unprocessable Entity",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// KnownStatus reports whether code is in the fixed enumeration.
func KnownStatus(code int) (Status, bool) {
	_, ok := statusText[Status(code)]
	return Status(code), ok
}

// Text returns the canonical status line text for s.
func (s Status) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "Unknown"
}
