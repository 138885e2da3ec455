package designs

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	xrv "github.com/mattermost/xml-roundtrip-validator"

	"github.com/custshop/custshop/internal/platform/httpx"
)

// MaxImageBytes bounds uploaded artwork.
const MaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
}

// sniffImage confirms data matches the declared content type and returns the
// canonical type and file extension.
func sniffImage(declared string, data []byte) (string, string, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid content type", httpx.ErrValidation)
	}
	ext, ok := imageExtensions[mediaType]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported image type %q", httpx.ErrValidation, mediaType)
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: image is empty", httpx.ErrValidation)
	}
	if mediaType == "image/svg+xml" {
		if err := checkSVG(data); err != nil {
			return "", "", err
		}
		return mediaType, ext, nil
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	if sniffed != mediaType {
		return "", "", fmt.Errorf("%w: body is %s, not %s", httpx.ErrValidation, sniffed, mediaType)
	}
	return mediaType, ext, nil
}

// checkSVG requires well-formed XML whose root element is svg, with no scripts,
// embedded foreign content, event handler attributes or javascript: links.
func checkSVG(data []byte) error {
	if err := xrv.Validate(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: malformed svg: %v", httpx.ErrValidation, err)
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	root := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: malformed svg: %v", httpx.ErrValidation, err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := strings.ToLower(el.Name.Local)
		if !root {
			if name != "svg" {
				return fmt.Errorf("%w: body is not an svg document", httpx.ErrValidation)
			}
			root = true
		}
		if name == "script" || name == "foreignobject" {
			return fmt.Errorf("%w: svg contains <%s>", httpx.ErrValidation, el.Name.Local)
		}
		for _, attr := range el.Attr {
			local := strings.ToLower(attr.Name.Local)
			if strings.HasPrefix(local, "on") {
				return fmt.Errorf("%w: svg contains event handler %s", httpx.ErrValidation, attr.Name.Local)
			}
			if local == "href" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(attr.Value)), "javascript:") {
				return fmt.Errorf("%w: svg links to javascript", httpx.ErrValidation)
			}
		}
	}
	if !root {
		return fmt.Errorf("%w: body is not an svg document", httpx.ErrValidation)
	}
	return nil
}
