package proto

const (
	// Line terminator used throughout the wire format.
	CRLF = "\r\n"

	// Request methods understood by the framework.
	METHOD_GET    = "GET"
	METHOD_PUT    = "PUT"
	METHOD_POST   = "POST"
	METHOD_DELETE = "DELETE"
	METHOD_HEAD   = "HEAD"

	// Transport protocol tags. Filters select a transport by matching on these.
	PROTOCOL_HTTP   = "HTTP"
	PROTOCOL_HTTPU  = "HTTPU"
	PROTOCOL_HTTPMU = "HTTPMU"

	// Defaults applied when building messages.
	DEFAULT_PROTOCOL = PROTOCOL_HTTP
	DEFAULT_VERSION  = "1.1"
	DEFAULT_PORT     = 80
	DEFAULT_CHARSET  = "ISO-8859-1"

	// Header names with special meaning to the framework.
	HEADER_CONTENT_TYPE      = "Content-Type"
	HEADER_CONTENT_LENGTH    = "Content-Length"
	HEADER_TRANSFER_ENCODING = "Transfer-Encoding"
	HEADER_UNIQUE_ID         = "Unique-ID"
	HEADER_ALLOW             = "Allow"
	HEADER_ACCEPT            = "Accept"
	HEADER_HOST              = "Host"
	HEADER_LOCATION          = "Location"

	// The only transfer coding with special handling.
	TRANSFER_ENCODING_CHUNKED = "chunked"

	// Media types with built-in converters.
	MIME_TEXT_PLAIN  = "text/plain"
	MIME_TEXT_XML    = "text/xml"
	MIME_XML         = "application/xml"
	MIME_URLENCODED  = "application/x-www-form-urlencoded"
	MIME_OCTETSTREAM = "application/octet-stream"
	MIME_CBOR        = "application/cbor"

	// Largest chunk emitted by a chunked output stream.
	MAX_CHUNK_SIZE = 2048

	// Size of the buffer used to receive a single datagram. Larger datagrams are truncated.
	UDP_PACKET_LENGTH = 512

	// Buffer size used when copying a message body onto the wire.
	STREAM_COPY_BUFFER = 512
)
