package proto

import (
	"fmt"
	"sync"
)

// A response status: numeric code plus reason phrase.
type Status struct {
	Code   int
	Reason string
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code, s.Reason)
}

var (
	STATUS_CONTINUE            = Status{100, "Continue"}
	STATUS_SWITCHING_PROTOCOLS = Status{101, "Switching Protocols"}

	STATUS_OK                            = Status{200, "OK"}
	STATUS_CREATED                       = Status{201, "Created"}
	STATUS_ACCEPTED                      = Status{202, "Accepted"}
	STATUS_NON_AUTHORITATIVE_INFORMATION = Status{203, "Non-Authoritative Information"}
	STATUS_NO_CONTENT                    = Status{204, "No Content"}
	STATUS_RESET_CONTENT                 = Status{205, "Reset Content"}
	STATUS_PARTIAL_CONTENT               = Status{206, "Partial Content"}

	STATUS_MULTIPLE_CHOICES   = Status{300, "Multiple Choices"}
	STATUS_MOVED_PERMANENTLY  = Status{301, "Moved Permanently"}
	STATUS_FOUND              = Status{302, "Found"}
	STATUS_SEE_OTHER          = Status{303, "See Other"}
	STATUS_NOT_MODIFIED       = Status{304, "Not Modified"}
	STATUS_USE_PROXY          = Status{305, "Use Proxy"}
	STATUS_TEMPORARY_REDIRECT = Status{307, "Temporary Redirect"}

	STATUS_BAD_REQUEST                     = Status{400, "Bad Request"}
	STATUS_UNAUTHORIZED                    = Status{401, "Unauthorized"}
	STATUS_PAYMENT_REQUIRED                = Status{402, "Payment Required"}
	STATUS_FORBIDDEN                       = Status{403, "Forbidden"}
	STATUS_NOT_FOUND                       = Status{404, "Not Found"}
	STATUS_METHOD_NOT_ALLOWED              = Status{405, "Method Not Allowed"}
	STATUS_NOT_ACCEPTABLE                  = Status{406, "Not Acceptable"}
	STATUS_PROXY_AUTHENTICATION_REQUIRED   = Status{407, "Proxy Authentication Required"}
	STATUS_REQUEST_TIMEOUT                 = Status{408, "Request Time-out"}
	STATUS_CONFLICT                        = Status{409, "Conflict"}
	STATUS_GONE                            = Status{410, "Gone"}
	STATUS_LENGTH_REQUIRED                 = Status{411, "Length Required"}
	STATUS_PRECONDITION_FAILED             = Status{412, "Precondition Failed"}
	STATUS_REQUEST_ENTITY_TOO_LARGE        = Status{413, "Request Entity Too Large"}
	STATUS_REQUEST_URI_TOO_LARGE           = Status{414, "Request-URI Too Large"}
	STATUS_UNSUPPORTED_MEDIA_TYPE          = Status{415, "Unsupported Media Type"}
	STATUS_REQUESTED_RANGE_NOT_SATISFIABLE = Status{416, "Requested range not satisfiable"}
	STATUS_EXPECTATION_FAILED              = Status{417, "Expectation Failed"}

	STATUS_INTERNAL_SERVER_ERROR      = Status{500, "Internal Server Error"}
	STATUS_NOT_IMPLEMENTED            = Status{501, "Not Implemented"}
	STATUS_BAD_GATEWAY                = Status{502, "Bad Gateway"}
	STATUS_SERVICE_UNAVAILABLE        = Status{503, "Service Unavailable"}
	STATUS_GATEWAY_TIMEOUT            = Status{504, "Gateway Time-out"}
	STATUS_HTTP_VERSION_NOT_SUPPORTED = Status{505, "HTTP Version not supported"}
)

var (
	statusTableOnce sync.Once
	statusTable     map[int]Status
)

// Look up the canonical status for a numeric code. Unknown codes get an
// empty reason phrase.
func StatusForCode(code int) Status {
	statusTableOnce.Do(func() {
		statusTable = map[int]Status{}
		for _, s := range []Status{
			STATUS_CONTINUE, STATUS_SWITCHING_PROTOCOLS,
			STATUS_OK, STATUS_CREATED, STATUS_ACCEPTED, STATUS_NON_AUTHORITATIVE_INFORMATION,
			STATUS_NO_CONTENT, STATUS_RESET_CONTENT, STATUS_PARTIAL_CONTENT,
			STATUS_MULTIPLE_CHOICES, STATUS_MOVED_PERMANENTLY, STATUS_FOUND, STATUS_SEE_OTHER,
			STATUS_NOT_MODIFIED, STATUS_USE_PROXY, STATUS_TEMPORARY_REDIRECT,
			STATUS_BAD_REQUEST, STATUS_UNAUTHORIZED, STATUS_PAYMENT_REQUIRED, STATUS_FORBIDDEN,
			STATUS_NOT_FOUND, STATUS_METHOD_NOT_ALLOWED, STATUS_NOT_ACCEPTABLE,
			STATUS_PROXY_AUTHENTICATION_REQUIRED, STATUS_REQUEST_TIMEOUT, STATUS_CONFLICT,
			STATUS_GONE, STATUS_LENGTH_REQUIRED, STATUS_PRECONDITION_FAILED,
			STATUS_REQUEST_ENTITY_TOO_LARGE, STATUS_REQUEST_URI_TOO_LARGE,
			STATUS_UNSUPPORTED_MEDIA_TYPE, STATUS_REQUESTED_RANGE_NOT_SATISFIABLE,
			STATUS_EXPECTATION_FAILED,
			STATUS_INTERNAL_SERVER_ERROR, STATUS_NOT_IMPLEMENTED, STATUS_BAD_GATEWAY,
			STATUS_SERVICE_UNAVAILABLE, STATUS_GATEWAY_TIMEOUT, STATUS_HTTP_VERSION_NOT_SUPPORTED,
		} {
			statusTable[s.Code] = s
		}
	})

	if s, ok := statusTable[code]; ok {
		return s
	}
	return Status{Code: code}
}
