package comments_test

import (
	"reflect"
	"testing"

	"intraops/internal/comments"
)

func TestParseMentions(t *testing.T) {
	cases := []struct {
		content string
		want    []int64
	}{
		{"sin menciones", nil},
		{"hola @12", []int64{12}},
		{"@1 y @2, gracias @1", []int64{1, 2}},
		{"correo ana@example.com", nil},
		{"@", nil},
		{"@007 al final @42", []int64{7, 42}},
		{"pegado@3 cuenta", []int64{3}},
	}
	for _, tc := range cases {
		got := comments.ParseMentions(tc.content)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseMentions(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}
