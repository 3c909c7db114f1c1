package upstream

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestFindImageURL(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
		ok   bool
	}{
		{
			name: "nested url field",
			doc:  `{"a":{"b":{"url":"http://x/y.png"}}}`,
			want: "http://x/y.png",
			ok:   true,
		},
		{
			name: "plain string without url",
			doc:  `{"foo":"not a url"}`,
			want: "",
			ok:   false,
		},
		{
			name: "bare string url",
			doc:  `"https://host/path/img.jpg"`,
			want: "https://host/path/img.jpg",
			ok:   true,
		},
		{
			name: "image_url field",
			doc:  `{"data":{"image_url":"https://cdn.example/abc"}}`,
			want: "https://cdn.example/abc",
			ok:   true,
		},
		{
			name: "relative url field",
			doc:  `{"result":{"url":"/assets/pic"}}`,
			want: "/assets/pic",
			ok:   true,
		},
		{
			name: "url field not a link",
			doc:  `{"result":{"url":"pending"}}`,
			want: "",
			ok:   false,
		},
		{
			name: "extension match with query string",
			doc:  `{"items":["https://cdn.example/a.webp?sig=123"]}`,
			want: "https://cdn.example/a.webp?sig=123",
			ok:   true,
		},
		{
			name: "uppercase extension",
			doc:  `{"out":"https://cdn.example/IMG.PNG"}`,
			want: "https://cdn.example/IMG.PNG",
			ok:   true,
		},
		{
			name: "first match wins in document order",
			doc:  `{"first":{"url":"http://a/1.png"},"second":{"url":"http://b/2.png"}}`,
			want: "http://a/1.png",
			ok:   true,
		},
		{
			name: "depth-first match beats later sibling",
			doc:  `{"a":{"deep":{"url":"http://deep/x.png"}},"b":"http://shallow/y.png"}`,
			want: "http://deep/x.png",
			ok:   true,
		},
		{
			name: "array of candidates",
			doc:  `{"images":[{"note":"n"},{"url":"http://c/3.png"}]}`,
			want: "http://c/3.png",
			ok:   true,
		},
		{
			name: "numbers and booleans are skipped",
			doc:  `{"count":3,"done":true,"nested":{"url":"http://d/4.jpeg"}}`,
			want: "http://d/4.jpeg",
			ok:   true,
		},
		{
			name: "empty document",
			doc:  `{}`,
			want: "",
			ok:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FindImageURL(gjson.Parse(tc.doc), "")
			if ok != tc.ok || got != tc.want {
				t.Errorf("FindImageURL(%s) = (%q, %v), want (%q, %v)", tc.doc, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestFindImageURLAssetPathHint(t *testing.T) {
	doc := gjson.Parse(`{"asset":"https://cdn.example/storage/generated/abc123"}`)
	if _, ok := FindImageURL(doc, ""); ok {
		t.Error("matched without hint, want miss")
	}
	got, ok := FindImageURL(doc, "/storage/generated/")
	if !ok || got != "https://cdn.example/storage/generated/abc123" {
		t.Errorf("FindImageURL with hint = (%q, %v)", got, ok)
	}
}
