package fetch

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// decodeBody converts an HTML body to UTF-8. The charset comes from the
// Content-Type header; bodies without one that are not valid UTF-8 are run
// through detection.
func decodeBody(data []byte, contentType string) (string, error) {
	label := contentCharset(contentType)
	if isUTF8Label(label) || (label == "" && utf8.Valid(data)) {
		return string(data), nil
	}
	if label == "" {
		label = DetectCharset(data)
		if isUTF8Label(label) {
			return string(data), nil
		}
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		// unknown label, keep the raw bytes
		return string(data), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DetectCharset guesses the charset of data, defaulting to utf-8.
func DetectCharset(data []byte) string {
	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func contentCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func isUTF8Label(label string) bool {
	return label == "utf-8" || label == "utf8"
}
