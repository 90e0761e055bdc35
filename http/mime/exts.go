package mime

// builtin maps a lowercase file extension without the leading dot to its media
// type. It is never modified after initialization, so concurrent reads are fine.
var builtin = map[string]MIME{
	// web
	"html":        HTML,
	"htm":         HTML,
	"css":         CSS,
	"js":          JS,
	"mjs":         JS,
	"json":        JSON,
	"map":         JSON,
	"webmanifest": "application/manifest+json",
	"xml":         XML,
	"rss":         "application/rss+xml",
	"atom":        "application/atom+xml",
	"wasm":        WASM,
	"txt":         Plain,
	"md":          "text/markdown",
	"csv":         "text/csv",

	// images
	"png":  PNG,
	"apng": "image/apng",
	"jpg":  JPEG,
	"jpeg": JPEG,
	"gif":  GIF,
	"webp": WEBP,
	"avif": AVIF,
	"svg":  SVG,
	"ico":  ICO,
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",

	// fonts
	"woff":  WOFF,
	"woff2": WOFF2,
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"eot":   "application/vnd.ms-fontobject",

	// documents
	"pdf":  PDF,
	"rtf":  "application/rtf",
	"epub": "application/epub+zip",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odt":  "application/vnd.oasis.opendocument.text",
	"ods":  "application/vnd.oasis.opendocument.spreadsheet",
	"odp":  "application/vnd.oasis.opendocument.presentation",

	// audio
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"opus": "audio/opus",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"m4a":  "audio/mp4",
	"mid":  "audio/midi",
	"midi": "audio/midi",
	"weba": "audio/webm",

	// video
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
	"ogv":  "video/ogg",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mpeg": "video/mpeg",
	"ts":   "video/mp2t",

	// archives
	"zip": ZIP,
	"gz":  GZIP,
	"tgz": GZIP,
	"tar": "application/x-tar",
	"bz2": "application/x-bzip2",
	"xz":  "application/x-xz",
	"7z":  "application/x-7z-compressed",
	"rar": "application/vnd.rar",
	"zst": ZSTD,
}
