package imaging

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// CleanBase64 strips a data-URI prefix ("data:image/png;base64,...") so the
// remainder can be decoded or re-wrapped.
func CleanBase64(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

func decode(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(CleanBase64(b64))
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return raw, nil
}

func encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
