package upstream

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// imageExtPattern matches URLs pointing straight at an image asset, query
// string tolerated.
var imageExtPattern = regexp.MustCompile(`(?i)^https?://\S+\.(png|jpe?g|webp)(\?\S*)?$`)

// FindImageURL walks the parsed upstream response depth-first and returns the
// first plausible image URL. The generation endpoint has changed its response
// shape several times, so no fixed schema is assumed; matching rules are
// applied at every node in document order, first match wins:
//
//  1. a string that is an image-extension URL, or that contains the provider
//     asset path fragment;
//  2. an object whose "url" field is a string starting with "http" or "/";
//  3. an object carrying a string "image_url" field;
//  4. otherwise recurse into members and elements.
func FindImageURL(node gjson.Result, assetPathHint string) (string, bool) {
	switch {
	case node.Type == gjson.String:
		if isImageURL(node.String(), assetPathHint) {
			return node.String(), true
		}
	case node.IsObject():
		if urlField := node.Get("url"); urlField.Type == gjson.String {
			value := urlField.String()
			if strings.HasPrefix(value, "http") || strings.HasPrefix(value, "/") {
				return value, true
			}
		}
		if imageURL := node.Get("image_url"); imageURL.Type == gjson.String && imageURL.String() != "" {
			return imageURL.String(), true
		}
		var found string
		node.ForEach(func(_, value gjson.Result) bool {
			if url, ok := FindImageURL(value, assetPathHint); ok {
				found = url
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	case node.IsArray():
		var found string
		node.ForEach(func(_, value gjson.Result) bool {
			if url, ok := FindImageURL(value, assetPathHint); ok {
				found = url
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func isImageURL(s, assetPathHint string) bool {
	if imageExtPattern.MatchString(s) {
		return true
	}
	return assetPathHint != "" && strings.Contains(s, assetPathHint)
}
