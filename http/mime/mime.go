package mime

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	CSS         MIME = "text/css"
	JS          MIME = "text/javascript"
	JSON        MIME = "application/json"
	XML         MIME = "application/xml"
	WASM        MIME = "application/wasm"
	PDF         MIME = "application/pdf"
	SVG         MIME = "image/svg+xml"
	PNG         MIME = "image/png"
	JPEG        MIME = "image/jpeg"
	GIF         MIME = "image/gif"
	WEBP        MIME = "image/webp"
	AVIF        MIME = "image/avif"
	ICO         MIME = "image/vnd.microsoft.icon"
	WOFF        MIME = "font/woff"
	WOFF2       MIME = "font/woff2"
	ZIP         MIME = "application/zip"
	GZIP        MIME = "application/gzip"
	ZSTD        MIME = "application/zstd"
)

// PlainUTF8 is used for diagnostic bodies of error responses.
const PlainUTF8 = Plain + "; charset=utf-8"
